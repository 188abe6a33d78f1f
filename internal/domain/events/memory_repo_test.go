package events

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryState struct {
	nextID   int64
	nextCID  int64
	events   map[int64]Event
	members  map[int64]map[int64]time.Time
	comments []Comment
	names    map[int64]string
}

// memoryRepo is an in-process Repository for service tests. WithTx holds one lock for the
// whole callback, which is the isolation the SQL implementations provide.
type memoryRepo struct {
	mu   *sync.Mutex
	st   *memoryState
	held bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		mu: &sync.Mutex{},
		st: &memoryState{
			events:  make(map[int64]Event),
			members: make(map[int64]map[int64]time.Time),
			names:   map[int64]string{1: "alice", 2: "bob", 3: "carol", 4: "dave"},
		},
	}
}

func (r *memoryRepo) lock() func() {
	if r.held {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryRepo{mu: r.mu, st: r.st, held: true})
}

func (r *memoryRepo) Create(_ context.Context, p EventCreateParams) (Event, error) {
	defer r.lock()()
	for _, e := range r.st.events {
		if e.CreatorID == p.CreatorID && e.Title == p.Title && e.Date == p.Date {
			return Event{}, ErrDuplicateEvent
		}
	}
	r.st.nextID++
	e := Event{
		ID: r.st.nextID, CreatorID: p.CreatorID, CreatorName: r.st.names[p.CreatorID], Title: p.Title,
		Date: p.Date, Time: p.Time, Category: p.Category, Description: p.Description,
		Capacity: p.Capacity, Location: p.Location, LocationName: p.LocationName,
		ImageURL: p.ImageURL, CreatedAt: p.CreatedAt,
	}
	r.st.events[e.ID] = e
	return e, nil
}

func (r *memoryRepo) ExistsForCreator(_ context.Context, creatorID int64, title, date string) (bool, error) {
	defer r.lock()()
	for _, e := range r.st.events {
		if e.CreatorID == creatorID && e.Title == title && e.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) annotate(e Event, viewerID int64) Event {
	e.ParticipantCount = len(r.st.members[e.ID])
	_, e.Joined = r.st.members[e.ID][viewerID]
	return e
}

func (r *memoryRepo) Get(_ context.Context, eventID, viewerID int64) (Event, error) {
	defer r.lock()()
	e, ok := r.st.events[eventID]
	if !ok {
		return Event{}, ErrNotFound
	}
	return r.annotate(e, viewerID), nil
}

func (r *memoryRepo) LockForJoin(_ context.Context, eventID int64) (*int, error) {
	defer r.lock()()
	e, ok := r.st.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Capacity, nil
}

func (r *memoryRepo) CreatorOf(_ context.Context, eventID int64) (int64, error) {
	defer r.lock()()
	e, ok := r.st.events[eventID]
	if !ok {
		return 0, ErrNotFound
	}
	return e.CreatorID, nil
}

func (r *memoryRepo) deleteLocked(eventID int64) {
	delete(r.st.events, eventID)
	delete(r.st.members, eventID)
	kept := r.st.comments[:0]
	for _, c := range r.st.comments {
		if c.EventID != eventID {
			kept = append(kept, c)
		}
	}
	r.st.comments = kept
}

func (r *memoryRepo) Delete(_ context.Context, eventID int64) error {
	defer r.lock()()
	r.deleteLocked(eventID)
	return nil
}

func (r *memoryRepo) DeleteBefore(_ context.Context, cutoff string) (int64, error) {
	defer r.lock()()
	var n int64
	for id, e := range r.st.events {
		if e.Date < cutoff {
			r.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) List(_ context.Context, q ListQuery) ([]Event, error) {
	defer r.lock()()
	var out []Event
	for _, e := range r.st.events {
		switch q.Scope {
		case ScopeUpcoming:
			if e.Date < q.Today {
				continue
			}
		case ScopePast:
			if e.Date >= q.Today {
				continue
			}
		}
		if q.Search != "" {
			needle := strings.ToLower(q.Search)
			if !strings.Contains(strings.ToLower(e.Title), needle) && !strings.Contains(strings.ToLower(e.Description), needle) {
				continue
			}
		}
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		if q.CreatorID != 0 && e.CreatorID != q.CreatorID {
			continue
		}
		if q.ParticipantID != 0 {
			if _, ok := r.st.members[e.ID][q.ParticipantID]; !ok {
				continue
			}
		}
		out = append(out, r.annotate(e, q.ViewerID))
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Scope == ScopePast {
			return out[i].Date > out[j].Date
		}
		return out[i].Date < out[j].Date
	})
	return out, nil
}

func (r *memoryRepo) Categories(context.Context) ([]string, error) {
	defer r.lock()()
	seen := map[string]bool{}
	var out []string
	for _, e := range r.st.events {
		if !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memoryRepo) IsParticipant(_ context.Context, userID, eventID int64) (bool, error) {
	defer r.lock()()
	_, ok := r.st.members[eventID][userID]
	return ok, nil
}

func (r *memoryRepo) CountParticipants(_ context.Context, eventID int64) (int, error) {
	defer r.lock()()
	return len(r.st.members[eventID]), nil
}

func (r *memoryRepo) AddParticipant(_ context.Context, userID, eventID int64, joinedAt time.Time) error {
	defer r.lock()()
	if r.st.members[eventID] == nil {
		r.st.members[eventID] = make(map[int64]time.Time)
	}
	if _, ok := r.st.members[eventID][userID]; ok {
		return ErrAlreadyJoined
	}
	r.st.members[eventID][userID] = joinedAt
	return nil
}

func (r *memoryRepo) RemoveParticipant(_ context.Context, userID, eventID int64) (bool, error) {
	defer r.lock()()
	if _, ok := r.st.members[eventID][userID]; !ok {
		return false, nil
	}
	delete(r.st.members[eventID], userID)
	return true, nil
}

func (r *memoryRepo) ParticipantNames(_ context.Context, eventID int64) ([]string, error) {
	defer r.lock()()
	var out []string
	for id := range r.st.members[eventID] {
		out = append(out, r.st.names[id])
	}
	sort.Strings(out)
	return out, nil
}

func (r *memoryRepo) AddComment(_ context.Context, p CommentCreateParams) (Comment, error) {
	defer r.lock()()
	r.st.nextCID++
	c := Comment{ID: r.st.nextCID, EventID: p.EventID, UserID: p.UserID, Username: r.st.names[p.UserID], Content: p.Content, CreatedAt: p.CreatedAt}
	r.st.comments = append(r.st.comments, c)
	return c, nil
}

func (r *memoryRepo) ListComments(_ context.Context, eventID int64) ([]Comment, error) {
	defer r.lock()()
	var out []Comment
	for i := len(r.st.comments) - 1; i >= 0; i-- {
		if r.st.comments[i].EventID == eventID {
			out = append(out, r.st.comments[i])
		}
	}
	return out, nil
}
