package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Togather-Foundation/orbit/internal/api/problem"
	"github.com/Togather-Foundation/orbit/internal/domain/apperr"
	"github.com/Togather-Foundation/orbit/internal/domain/events"
)

// APIHandler serves the JSON API under /api/v1.
type APIHandler struct {
	Service *events.Service
	Env     string
}

func NewAPIHandler(service *events.Service, env string) *APIHandler {
	return &APIHandler{Service: service, Env: env}
}

type eventPayload struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Date             string    `json:"date"`
	Time             string    `json:"time,omitempty"`
	Category         string    `json:"category"`
	Description      string    `json:"description,omitempty"`
	Capacity         *int      `json:"capacity"`
	Location         string    `json:"location,omitempty"`
	LocationName     string    `json:"location_name,omitempty"`
	ImageURL         string    `json:"image_url,omitempty"`
	CreatorID        int64     `json:"creator_id"`
	CreatorName      string    `json:"creator_name,omitempty"`
	ParticipantCount int       `json:"participant_count"`
	Joined           bool      `json:"joined"`
	CreatedAt        time.Time `json:"created_at"`
}

type commentPayload struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type eventListResponse struct {
	Items []eventPayload `json:"items"`
}

type eventDetailResponse struct {
	eventPayload
	Participants []string         `json:"participants"`
	Comments     []commentPayload `json:"comments"`
}

type commentListResponse struct {
	Items []commentPayload `json:"items"`
}

type categoryListResponse struct {
	Items []string `json:"items"`
}

type joinResponse struct {
	EventID int64 `json:"event_id"`
	Joined  bool  `json:"joined"`
}

type commentRequest struct {
	Content string `json:"content"`
}

func toEventPayload(e events.Event) eventPayload {
	return eventPayload{
		ID:               e.ID,
		Title:            e.Title,
		Date:             e.Date,
		Time:             e.Time,
		Category:         e.Category,
		Description:      e.Description,
		Capacity:         e.Capacity,
		Location:         e.Location,
		LocationName:     e.LocationName,
		ImageURL:         e.ImageURL,
		CreatorID:        e.CreatorID,
		CreatorName:      e.CreatorName,
		ParticipantCount: e.ParticipantCount,
		Joined:           e.Joined,
		CreatedAt:        e.CreatedAt,
	}
}

func toCommentPayloads(comments []events.Comment) []commentPayload {
	out := make([]commentPayload, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentPayload{
			ID:        c.ID,
			EventID:   c.EventID,
			UserID:    c.UserID,
			Username:  c.Username,
			Content:   c.Content,
			CreatedAt: c.CreatedAt,
		})
	}
	return out
}

// List returns upcoming events, or past events with scope=past.
func (h *APIHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := events.ParseFilters(query)

	var (
		list []events.Event
		err  error
	)
	switch scope := query.Get("scope"); scope {
	case "", "upcoming":
		list, err = h.Service.ListUpcoming(r.Context(), viewerID(r), filters)
	case "past":
		list, err = h.Service.ListPast(r.Context(), viewerID(r), filters)
	default:
		err = apperr.NewValidationError("scope", "Scope must be upcoming or past")
	}
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}

	items := make([]eventPayload, 0, len(list))
	for _, e := range list {
		items = append(items, toEventPayload(e))
	}
	writeJSON(w, http.StatusOK, eventListResponse{Items: items})
}

// Get returns one event with its participants and comments.
func (h *APIHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	detail, err := h.Service.Detail(r.Context(), viewerID(r), eventID)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}

	participants := detail.ParticipantNames
	if participants == nil {
		participants = []string{}
	}
	writeJSON(w, http.StatusOK, eventDetailResponse{
		eventPayload: toEventPayload(detail.Event),
		Participants: participants,
		Comments:     toCommentPayloads(detail.Comments),
	})
}

// Comments lists an event's comments, newest first.
func (h *APIHandler) Comments(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	if _, err := h.Service.Get(r.Context(), viewerID(r), eventID); err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	comments, err := h.Service.ListComments(r.Context(), eventID)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, commentListResponse{Items: toCommentPayloads(comments)})
}

// Categories lists the distinct categories in use.
func (h *APIHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Service.Categories(r.Context())
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categoryListResponse{Items: categories})
}

// Join adds the session user to the event.
func (h *APIHandler) Join(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err == nil {
		err = h.Service.Join(r.Context(), sessionUser(r).UserID, eventID)
	}
	recordAction("join", err)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{EventID: eventID, Joined: true})
}

// Leave removes the session user from the event.
func (h *APIHandler) Leave(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err == nil {
		err = h.Service.Leave(r.Context(), sessionUser(r).UserID, eventID)
	}
	recordAction("leave", err)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{EventID: eventID, Joined: false})
}

// AddComment posts a comment from a JSON body.
func (h *APIHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isBodyTooLarge(err) {
			problem.FromError(w, r, err, h.Env)
			return
		}
		problem.FromError(w, r, apperr.NewValidationError("body", "Request body must be a JSON object"), h.Env)
		return
	}

	comment, err := h.Service.AddComment(r.Context(), sessionUser(r).UserID, eventID, req.Content)
	recordAction("comment", err)
	if err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentPayloads([]events.Comment{comment})[0])
}
