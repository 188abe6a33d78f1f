package events

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
	"github.com/Togather-Foundation/orbit/internal/sanitize"
	"github.com/Togather-Foundation/orbit/internal/validation"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// DefaultRetention is how long past events are kept before the sweep removes them.
const DefaultRetention = 72 * time.Hour

// Service applies the event rules on top of a Repository.
type Service struct {
	repo      Repository
	logger    zerolog.Logger
	now       func() time.Time
	retention time.Duration
	validate  *validator.Validate
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides time.Now. "Today" is derived from it in its own location.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRetention overrides DefaultRetention.
func WithRetention(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.retention = window
		}
	}
}

func NewService(repo Repository, logger zerolog.Logger, opts ...Option) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		if name := field.Tag.Get("form"); name != "" && name != "-" {
			return name
		}
		return field.Name
	})

	s := &Service{
		repo:      repo,
		logger:    logger.With().Str("component", "events").Logger(),
		now:       time.Now,
		retention: DefaultRetention,
		validate:  v,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is the raw event form. Create sanitizes and validates it.
type CreateInput struct {
	Title        string `form:"title" validate:"required,max=200"`
	Date         string `form:"date" validate:"required,datetime=2006-01-02"`
	Time         string `form:"time"`
	Category     string `form:"category"`
	Description  string `form:"description" validate:"max=5000"`
	Capacity     *int   `form:"capacity" validate:"omitempty,min=1"`
	Location     string `form:"location" validate:"omitempty,url"`
	LocationName string `form:"location_name" validate:"max=200"`
	ImageURL     string `form:"image_url" validate:"omitempty,url"`
}

// Today is the boundary between upcoming and past listings.
func (s *Service) Today() string {
	return s.now().Format(DateLayout)
}

// Create stores a new event. A second event with the same creator, title and date is rejected
// with ErrDuplicateEvent. The lookup catches the ordinary resubmit; concurrent submits that both
// pass it are stopped by the repository's unique constraint.
func (s *Service) Create(ctx context.Context, creatorID int64, in CreateInput) (Event, error) {
	params, err := s.normalize(creatorID, in)
	if err != nil {
		return Event{}, err
	}

	var created Event
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		exists, err := tx.ExistsForCreator(ctx, params.CreatorID, params.Title, params.Date)
		if err != nil {
			return fmt.Errorf("check duplicate event: %w", err)
		}
		if exists {
			return ErrDuplicateEvent
		}
		created, err = tx.Create(ctx, params)
		if err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		return nil
	})
	if err != nil {
		return Event{}, err
	}

	s.logger.Info().Int64("event_id", created.ID).Int64("user_id", creatorID).Msg("event created")
	return created, nil
}

func (s *Service) normalize(creatorID int64, in CreateInput) (EventCreateParams, error) {
	in.Title = sanitize.Text(in.Title)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	in.Category = sanitize.Text(in.Category)
	in.Description = sanitize.Multiline(in.Description)
	in.Location = strings.TrimSpace(in.Location)
	in.LocationName = sanitize.Text(in.LocationName)
	in.ImageURL = strings.TrimSpace(in.ImageURL)

	verr := &apperr.ValidationError{}
	if err := s.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return EventCreateParams{}, fmt.Errorf("validate event: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), fieldMessage(fe))
		}
	}

	for field, value := range map[string]string{"location": in.Location, "image_url": in.ImageURL} {
		var urlErr validation.URLValidationError
		if err := validation.ValidateURL(value, field, false); errors.As(err, &urlErr) {
			verr.Add(field, urlErr.Message)
		}
	}

	eventTime, ok := normalizeTime(in.Time)
	if !ok {
		verr.Add("time", "Time must be HH:MM")
	}

	if err := verr.Err(); err != nil {
		return EventCreateParams{}, err
	}

	return EventCreateParams{
		CreatorID:    creatorID,
		Title:        in.Title,
		Date:         in.Date,
		Time:         eventTime,
		Category:     NormalizeCategory(in.Category),
		Description:  in.Description,
		Capacity:     in.Capacity,
		Location:     in.Location,
		LocationName: in.LocationName,
		ImageURL:     in.ImageURL,
		CreatedAt:    s.now().UTC(),
	}, nil
}

func fieldMessage(fe validator.FieldError) string {
	label := fieldLabels[fe.Field()]
	if label == "" {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "datetime":
		return label + " must be a date (YYYY-MM-DD)"
	case "url":
		return "Invalid URL"
	}
	return label + " is invalid"
}

var fieldLabels = map[string]string{
	"title":         "Title",
	"date":          "Date",
	"description":   "Description",
	"capacity":      "Capacity",
	"location":      "Location",
	"location_name": "Location name",
	"image_url":     "Image URL",
}

// normalizeTime accepts HH:MM or HH:MM:SS and returns HH:MM. Empty is valid.
func normalizeTime(value string) (string, bool) {
	if value == "" {
		return "", true
	}
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(TimeLayout), true
		}
	}
	return "", false
}

// NormalizeCategory maps unknown or empty categories to DefaultCategory.
func NormalizeCategory(category string) string {
	for _, c := range Categories {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	return DefaultCategory
}

// ListUpcoming returns events dated today or later, earliest first.
func (s *Service) ListUpcoming(ctx context.Context, viewerID int64, filters Filters) ([]Event, error) {
	return s.list(ctx, ListQuery{Scope: ScopeUpcoming, ViewerID: viewerID}, filters)
}

// ListPast returns events dated before today, most recent first.
func (s *Service) ListPast(ctx context.Context, viewerID int64, filters Filters) ([]Event, error) {
	return s.list(ctx, ListQuery{Scope: ScopePast, ViewerID: viewerID}, filters)
}

func (s *Service) list(ctx context.Context, query ListQuery, filters Filters) ([]Event, error) {
	filters = filters.normalized()
	query.Today = s.Today()
	query.Search = filters.Search
	query.Category = filters.Category
	events, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ListCreatedBy returns the events a user created, earliest first.
func (s *Service) ListCreatedBy(ctx context.Context, userID int64) ([]Event, error) {
	events, err := s.repo.List(ctx, ListQuery{Scope: ScopeAll, ViewerID: userID, CreatorID: userID})
	if err != nil {
		return nil, fmt.Errorf("list created events: %w", err)
	}
	return events, nil
}

// ListJoinedBy returns the events a user joined, earliest first.
func (s *Service) ListJoinedBy(ctx context.Context, userID int64) ([]Event, error) {
	events, err := s.repo.List(ctx, ListQuery{Scope: ScopeAll, ViewerID: userID, ParticipantID: userID})
	if err != nil {
		return nil, fmt.Errorf("list joined events: %w", err)
	}
	return events, nil
}

func (s *Service) Get(ctx context.Context, viewerID, eventID int64) (Event, error) {
	event, err := s.repo.Get(ctx, eventID, viewerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Event{}, ErrNotFound
		}
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// Detail loads an event with its participant names and comments.
func (s *Service) Detail(ctx context.Context, viewerID, eventID int64) (Detail, error) {
	event, err := s.Get(ctx, viewerID, eventID)
	if err != nil {
		return Detail{}, err
	}
	names, err := s.repo.ParticipantNames(ctx, eventID)
	if err != nil {
		return Detail{}, fmt.Errorf("participant names: %w", err)
	}
	comments, err := s.ListComments(ctx, eventID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Event: event, ParticipantNames: names, Comments: comments}, nil
}

// Join adds the user to the event. Checks run in order (event exists, not yet joined, capacity
// left) inside one transaction that also holds the event row lock, so concurrent joins cannot
// oversell the last spot.
func (s *Service) Join(ctx context.Context, userID, eventID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		capacity, err := tx.LockForJoin(ctx, eventID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load event: %w", err)
		}

		joined, err := tx.IsParticipant(ctx, userID, eventID)
		if err != nil {
			return fmt.Errorf("check participant: %w", err)
		}
		if joined {
			return ErrAlreadyJoined
		}

		if capacity != nil {
			count, err := tx.CountParticipants(ctx, eventID)
			if err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if count >= *capacity {
				return ErrEventFull
			}
		}

		if err := tx.AddParticipant(ctx, userID, eventID, s.now().UTC()); err != nil {
			if errors.Is(err, ErrAlreadyJoined) {
				return ErrAlreadyJoined
			}
			return fmt.Errorf("add participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("event_id", eventID).Int64("user_id", userID).Msg("event joined")
	return nil
}

// Leave removes the user's membership.
func (s *Service) Leave(ctx context.Context, userID, eventID int64) error {
	removed, err := s.repo.RemoveParticipant(ctx, userID, eventID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if !removed {
		return ErrNotParticipant
	}
	s.logger.Info().Int64("event_id", eventID).Int64("user_id", userID).Msg("event left")
	return nil
}

// Delete removes an event with its participants and comments. Only the creator may delete.
func (s *Service) Delete(ctx context.Context, requesterID, eventID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		creatorID, err := tx.CreatorOf(ctx, eventID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load event: %w", err)
		}
		if creatorID != requesterID {
			return ErrForbidden
		}
		if err := tx.Delete(ctx, eventID); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("event_id", eventID).Int64("user_id", requesterID).Msg("event deleted")
	return nil
}

// AddComment stores a comment on an existing event.
func (s *Service) AddComment(ctx context.Context, userID, eventID int64, content string) (Comment, error) {
	content = sanitize.Multiline(content)
	switch {
	case content == "":
		return Comment{}, apperr.NewValidationError("content", "Content cannot be empty")
	case len([]rune(content)) > MaxCommentLength:
		return Comment{}, apperr.NewValidationError("content", fmt.Sprintf("Comment must be at most %d characters", MaxCommentLength))
	}

	var comment Comment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if _, err := tx.CreatorOf(ctx, eventID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load event: %w", err)
		}
		var err error
		comment, err = tx.AddComment(ctx, CommentCreateParams{
			EventID:   eventID,
			UserID:    userID,
			Content:   content,
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("add comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return Comment{}, err
	}
	return comment, nil
}

// ListComments returns an event's comments, newest first.
func (s *Service) ListComments(ctx context.Context, eventID int64) ([]Comment, error) {
	comments, err := s.repo.ListComments(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// Categories returns the distinct categories in use, sorted.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// RetentionCutoff is the first date that survives a sweep run now.
func (s *Service) RetentionCutoff() string {
	return s.now().Add(-s.retention).Format(DateLayout)
}

// PurgeExpired deletes events dated before RetentionCutoff, with their participants and comments.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.RetentionCutoff()
	deleted, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events before %s: %w", cutoff, err)
	}
	return deleted, nil
}
