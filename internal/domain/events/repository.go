package events

import (
	"context"
	"time"

	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
)

const (
	// DateLayout is the stored form of Event.Date. Lexicographic order equals date order.
	DateLayout = "2006-01-02"
	// TimeLayout is the stored form of Event.Time.
	TimeLayout = "15:04"

	DefaultCategory = "General"
	// AllCategories is the listing filter value meaning "no category filter".
	AllCategories = "All"

	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
	MaxCommentLength     = 1000
)

// Categories offered by the event form. Anything else is stored as DefaultCategory.
var Categories = []string{"General", "Tech", "Social", "Sports", "Art", "Education", "Music", "Food", "Other"}

var (
	ErrNotFound       = apperr.New(apperr.NotFound, "Event not found")
	ErrDuplicateEvent = apperr.New(apperr.Conflict, "Event already exists")
	ErrAlreadyJoined  = apperr.New(apperr.Conflict, "You already joined this event")
	ErrEventFull      = apperr.New(apperr.CapacityExceeded, "Event is full")
	ErrNotParticipant = apperr.New(apperr.NotFound, "You are not part of this event")
	ErrForbidden      = apperr.New(apperr.Permission, "You can only delete your own events")
)

// Event is a stored event plus the per-viewer annotations computed by listings.
type Event struct {
	ID           int64
	CreatorID    int64
	CreatorName  string
	Title        string
	Date         string
	Time         string
	Category     string
	Description  string
	Capacity     *int
	Location     string
	LocationName string
	ImageURL     string
	CreatedAt    time.Time

	ParticipantCount int
	Joined           bool
}

// IsFull reports whether a capped event has no free spot left.
func (e Event) IsFull() bool {
	return e.Capacity != nil && e.ParticipantCount >= *e.Capacity
}

// SpotsLeft returns the remaining spots, or -1 when capacity is unlimited.
func (e Event) SpotsLeft() int {
	if e.Capacity == nil {
		return -1
	}
	if left := *e.Capacity - e.ParticipantCount; left > 0 {
		return left
	}
	return 0
}

type Comment struct {
	ID        int64
	EventID   int64
	UserID    int64
	Username  string
	Content   string
	CreatedAt time.Time
}

// Detail is everything the event page shows.
type Detail struct {
	Event            Event
	ParticipantNames []string
	Comments         []Comment
}

// EventCreateParams is a validated, normalized event ready to insert.
type EventCreateParams struct {
	CreatorID    int64
	Title        string
	Date         string
	Time         string
	Category     string
	Description  string
	Capacity     *int
	Location     string
	LocationName string
	ImageURL     string
	CreatedAt    time.Time
}

type CommentCreateParams struct {
	EventID   int64
	UserID    int64
	Content   string
	CreatedAt time.Time
}

// Scope selects events relative to today.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeUpcoming
	ScopePast
)

// ListQuery drives every event listing. Zero-valued fields do not filter.
// Upcoming sorts by date ascending, Past by date descending, All ascending.
type ListQuery struct {
	Scope Scope
	// Today is the boundary date in DateLayout; required for ScopeUpcoming and ScopePast.
	Today string
	// ViewerID annotates Event.Joined; zero means anonymous.
	ViewerID      int64
	Search        string
	Category      string
	CreatorID     int64
	ParticipantID int64
}

// Repository persists events, participants and comments.
//
// Implementations return ErrNotFound for missing events, ErrDuplicateEvent when a creator
// already has an event with the same title and date, and ErrAlreadyJoined when the participant
// primary key rejects an insert. Listing methods compute participant counts and
// the viewer's joined flag in the same statement as the rows.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	Create(ctx context.Context, params EventCreateParams) (Event, error)
	ExistsForCreator(ctx context.Context, creatorID int64, title, date string) (bool, error)
	Get(ctx context.Context, eventID, viewerID int64) (Event, error)
	// LockForJoin returns the event's capacity, locking the row where the engine supports it.
	LockForJoin(ctx context.Context, eventID int64) (*int, error)
	CreatorOf(ctx context.Context, eventID int64) (int64, error)
	Delete(ctx context.Context, eventID int64) error
	DeleteBefore(ctx context.Context, cutoffDate string) (int64, error)

	List(ctx context.Context, query ListQuery) ([]Event, error)
	Categories(ctx context.Context) ([]string, error)

	IsParticipant(ctx context.Context, userID, eventID int64) (bool, error)
	CountParticipants(ctx context.Context, eventID int64) (int, error)
	AddParticipant(ctx context.Context, userID, eventID int64, joinedAt time.Time) error
	RemoveParticipant(ctx context.Context, userID, eventID int64) (bool, error)
	ParticipantNames(ctx context.Context, eventID int64) ([]string, error)

	AddComment(ctx context.Context, params CommentCreateParams) (Comment, error)
	ListComments(ctx context.Context, eventID int64) ([]Comment, error)
}
