package handlers

import (
	"context"
	"net/http"

	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
	"github.com/Togather-Foundation/orbit/internal/domain/events"
)

type filtersView struct {
	Action     string
	Search     string
	Category   string
	Categories []string
}

type listingView struct {
	Events  []events.Event
	Filters filtersView
}

type profileView struct {
	Created []events.Event
	Joined  []events.Event
}

type detailView struct {
	Detail     events.Detail
	IsCreator  bool
	CommentMax int
}

// Index lists upcoming events.
func (s *Site) Index(w http.ResponseWriter, r *http.Request) {
	s.listing(w, r, "/", "index.html", "Upcoming events", s.events.ListUpcoming)
}

// History lists past events that have not been swept yet.
func (s *Site) History(w http.ResponseWriter, r *http.Request) {
	s.listing(w, r, "/history", "history.html", "Past events", s.events.ListPast)
}

type listFunc func(ctx context.Context, viewerID int64, filters events.Filters) ([]events.Event, error)

func (s *Site) listing(w http.ResponseWriter, r *http.Request, action, tmpl, title string, list listFunc) {
	filters := events.ParseFilters(r.URL.Query())

	items, err := list(r.Context(), viewerID(r), filters)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	categories, err := s.events.Categories(r.Context())
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	selected := filters.Category
	if selected == "" {
		selected = events.AllCategories
	}
	view := listingView{
		Events: items,
		Filters: filtersView{
			Action:     action,
			Search:     filters.Search,
			Category:   selected,
			Categories: categories,
		},
	}
	s.render(w, r, http.StatusOK, tmpl, s.page(w, r, title, view))
}

// Profile shows the events the user created and joined.
func (s *Site) Profile(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)

	created, err := s.events.ListCreatedBy(r.Context(), user.UserID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	joined, err := s.events.ListJoinedBy(r.Context(), user.UserID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "profile.html", s.page(w, r, "Profile", profileView{Created: created, Joined: joined}))
}

// EventDetail shows one event with its participants and comments.
func (s *Site) EventDetail(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	viewer := viewerID(r)
	detail, err := s.events.Detail(r.Context(), viewer, eventID)
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	view := detailView{
		Detail:     detail,
		IsCreator:  viewer != 0 && detail.Event.CreatorID == viewer,
		CommentMax: events.MaxCommentLength,
	}
	s.render(w, r, http.StatusOK, "event.html", s.page(w, r, detail.Event.Title, view))
}

var errPageNotFound = apperr.New(apperr.NotFound, "Page not found")

// NotFound renders the 404 page for unknown paths.
func (s *Site) NotFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, errPageNotFound)
}
