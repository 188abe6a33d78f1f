package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Togather-Foundation/orbit/internal/api/problem"
	"github.com/Togather-Foundation/orbit/internal/domain/events"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestAPIList_Scopes(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	upcoming := f.createEvent(t, alice, "Hackathon", "2026-06-10", nil)
	f.createEvent(t, alice, "Retro", "2026-05-30", nil)
	require.NoError(t, f.events.Join(context.Background(), bob.ID, upcoming.ID))

	rec := httptest.NewRecorder()
	f.api.List(rec, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/events", nil), bob))
	require.Equal(t, http.StatusOK, rec.Code)
	var list eventListResponse
	decodeJSON(t, rec, &list)
	require.Len(t, list.Items, 1)
	require.Equal(t, "Hackathon", list.Items[0].Title)
	require.Equal(t, 1, list.Items[0].ParticipantCount)
	require.True(t, list.Items[0].Joined)

	rec = httptest.NewRecorder()
	f.api.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?scope=past", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list = eventListResponse{}
	decodeJSON(t, rec, &list)
	require.Len(t, list.Items, 1)
	require.Equal(t, "Retro", list.Items[0].Title)
	require.False(t, list.Items[0].Joined)

	rec = httptest.NewRecorder()
	f.api.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?scope=someday", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestAPIJoinLeave(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")
	event := f.createEvent(t, alice, "Small table", "2026-06-10", intPtr(1))

	rec := httptest.NewRecorder()
	f.api.Join(rec, withEventID(asUser(httptest.NewRequest(http.MethodPost, "/api/v1/events/x/join", nil), bob), event.ID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.api.Join(rec, withEventID(asUser(httptest.NewRequest(http.MethodPost, "/api/v1/events/x/join", nil), carol), event.ID))
	require.Equal(t, http.StatusConflict, rec.Code)
	var p problem.ProblemDetails
	decodeJSON(t, rec, &p)
	require.Equal(t, problem.TypeCapacityExceeded, p.Type)

	rec = httptest.NewRecorder()
	f.api.Leave(rec, withEventID(asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/events/x/join", nil), carol), event.ID))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	f.api.Leave(rec, withEventID(asUser(httptest.NewRequest(http.MethodDelete, "/api/v1/events/x/join", nil), bob), event.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp joinResponse
	decodeJSON(t, rec, &resp)
	require.Equal(t, joinResponse{EventID: event.ID, Joined: false}, resp)
}

func TestAPIComments(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	event := f.createEvent(t, alice, "Reading", "2026-06-10", nil)

	for _, content := range []string{"first", "second"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/x/comments", strings.NewReader(`{"content":"`+content+`"}`))
		f.api.AddComment(rec, withEventID(asUser(req, alice), event.ID))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := httptest.NewRecorder()
	f.api.Comments(rec, withEventID(httptest.NewRequest(http.MethodGet, "/api/v1/events/x/comments", nil), event.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var list commentListResponse
	decodeJSON(t, rec, &list)
	require.Len(t, list.Items, 2)
	require.Equal(t, "second", list.Items[0].Content, "newest first")
	require.Equal(t, "alice", list.Items[0].Username)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events/x/comments", strings.NewReader(`not json`))
	f.api.AddComment(rec, withEventID(asUser(req, alice), event.ID))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	f.api.Comments(rec, withEventID(httptest.NewRequest(http.MethodGet, "/api/v1/events/x/comments", nil), 404))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIGetAndCategories(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	event := f.createEvent(t, alice, "Jam session", "2026-06-10", nil)
	_, err := f.events.Create(context.Background(), alice.ID, events.CreateInput{Title: "Chess", Date: "2026-06-11", Category: "Tech"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.api.Get(rec, withEventID(httptest.NewRequest(http.MethodGet, "/api/v1/events/x", nil), event.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var detail eventDetailResponse
	decodeJSON(t, rec, &detail)
	require.Equal(t, "Jam session", detail.Title)
	require.Equal(t, "alice", detail.CreatorName)
	require.NotNil(t, detail.Participants)

	rec = httptest.NewRecorder()
	f.api.Categories(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cats categoryListResponse
	decodeJSON(t, rec, &cats)
	require.Equal(t, []string{"General", "Tech"}, cats.Items)
}
