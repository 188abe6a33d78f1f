package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Togather-Foundation/orbit/internal/api/render"
	"github.com/Togather-Foundation/orbit/internal/audit"
	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
	"github.com/Togather-Foundation/orbit/internal/domain/events"
)

// eventFormValues keeps the raw submission so a rejected form comes back filled in.
type eventFormValues struct {
	Title        string
	Date         string
	Time         string
	Category     string
	Description  string
	Capacity     string
	Location     string
	LocationName string
	ImageURL     string
}

type newEventView struct {
	Form       eventFormValues
	Errors     map[string]string
	Categories []string
}

func readEventForm(r *http.Request) eventFormValues {
	return eventFormValues{
		Title:        r.PostFormValue("title"),
		Date:         r.PostFormValue("date"),
		Time:         r.PostFormValue("time"),
		Category:     r.PostFormValue("category"),
		Description:  r.PostFormValue("description"),
		Capacity:     r.PostFormValue("capacity"),
		Location:     r.PostFormValue("location"),
		LocationName: r.PostFormValue("location_name"),
		ImageURL:     r.PostFormValue("image_url"),
	}
}

func (v eventFormValues) input() (events.CreateInput, error) {
	capacity, err := events.ParseCapacity(v.Capacity)
	if err != nil {
		return events.CreateInput{}, err
	}
	return events.CreateInput{
		Title:        v.Title,
		Date:         v.Date,
		Time:         v.Time,
		Category:     v.Category,
		Description:  v.Description,
		Capacity:     capacity,
		Location:     v.Location,
		LocationName: v.LocationName,
		ImageURL:     v.ImageURL,
	}, nil
}

// NewEventForm shows the empty event form.
func (s *Site) NewEventForm(w http.ResponseWriter, r *http.Request) {
	view := newEventView{
		Form:       eventFormValues{Category: events.DefaultCategory},
		Categories: events.Categories,
	}
	s.render(w, r, http.StatusOK, "new_event.html", s.page(w, r, "New event", view))
}

// CreateEvent stores a submitted event. Rejected input re-renders the form with the values
// and per-field messages; a duplicate re-renders it with 409.
func (s *Site) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.formParseError(w, r, err)
		return
	}
	user := sessionUser(r)
	values := readEventForm(r)

	input, err := values.input()
	if err == nil {
		_, err = s.events.Create(r.Context(), user.UserID, input)
	}
	recordAction("create", err)

	if err != nil {
		kind := apperr.KindOf(err)
		if kind != apperr.Validation && kind != apperr.Conflict {
			s.renderError(w, r, err)
			return
		}
		view := newEventView{Form: values, Categories: events.Categories}
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			view.Errors = verr.Fields
		}
		page := s.page(w, r, "New event", view)
		page.Flashes = append(page.Flashes, render.Flash{Level: render.FlashWarning, Message: formFlash(err)})
		s.render(w, r, statusForKind(kind), "new_event.html", page)
		return
	}

	s.flashes.Add(w, r, render.FlashSuccess, "Event added successfully!")
	redirect(w, r, "/")
}

func formFlash(err error) string {
	if errors.Is(err, events.ErrDuplicateEvent) {
		return "This event already exists."
	}
	return "Please fix the highlighted fields."
}

// Join adds the session user to the event.
func (s *Site) Join(w http.ResponseWriter, r *http.Request) {
	s.eventAction(w, r, "join", "/", func(eventID int64) (string, string, error) {
		err := s.events.Join(r.Context(), sessionUser(r).UserID, eventID)
		return render.FlashSuccess, "You have joined the event!", err
	})
}

// Leave removes the session user from the event.
func (s *Site) Leave(w http.ResponseWriter, r *http.Request) {
	s.eventAction(w, r, "leave", "/profile", func(eventID int64) (string, string, error) {
		err := s.events.Leave(r.Context(), sessionUser(r).UserID, eventID)
		return render.FlashDanger, "You have left the event.", err
	})
}

// Delete removes an event the session user created.
func (s *Site) Delete(w http.ResponseWriter, r *http.Request) {
	s.eventAction(w, r, "delete", "/profile", func(eventID int64) (string, string, error) {
		user := sessionUser(r)
		err := s.events.Delete(r.Context(), user.UserID, eventID)
		if err == nil || apperr.KindOf(err) == apperr.Permission {
			entry := audit.Entry{
				Action:       "event.delete",
				Actor:        user.Username,
				ResourceType: "event",
				ResourceID:   strconv.FormatInt(eventID, 10),
			}
			if err != nil {
				entry.Status = audit.StatusFailure
			}
			s.audit.LogRequest(r, entry)
		}
		return render.FlashSuccess, "Event deleted successfully!", err
	})
}

// eventAction runs a one-click action and reports the outcome as a flash on the page the
// form came from. Only unclassified failures render an error page.
func (s *Site) eventAction(w http.ResponseWriter, r *http.Request, action, fallback string, run func(eventID int64) (string, string, error)) {
	eventID, err := eventIDParam(r)
	if err != nil {
		recordAction(action, err)
		s.renderError(w, r, err)
		return
	}

	level, message, err := run(eventID)
	recordAction(action, err)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.Internal {
			s.renderError(w, r, err)
			return
		}
		s.flashes.Add(w, r, flashLevel(kind), apperr.Message(err, ""))
		redirect(w, r, backTo(r, fallback))
		return
	}

	s.flashes.Add(w, r, level, message)
	target := backTo(r, fallback)
	if action == "delete" && strings.HasPrefix(target, fmt.Sprintf("/events/%d", eventID)) {
		target = fallback
	}
	redirect(w, r, target)
}

// AddComment posts a comment and returns to the event page.
func (s *Site) AddComment(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.formParseError(w, r, err)
		return
	}

	_, err = s.events.AddComment(r.Context(), sessionUser(r).UserID, eventID, r.PostFormValue("content"))
	recordAction("comment", err)
	if err != nil {
		kind := apperr.KindOf(err)
		if kind != apperr.Validation {
			s.renderError(w, r, err)
			return
		}
		s.flashes.Add(w, r, flashLevel(kind), apperr.Message(err, ""))
	}
	redirect(w, r, fmt.Sprintf("/events/%d", eventID))
}

func (s *Site) formParseError(w http.ResponseWriter, r *http.Request, err error) {
	if isBodyTooLarge(err) {
		s.renderError(w, r, apperr.NewValidationError("body", "The submitted form is too large."))
		return
	}
	s.renderError(w, r, apperr.NewValidationError("body", "The submitted form could not be read."))
}
