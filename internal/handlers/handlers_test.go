package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticketgate/internal/credential"
	"ticketgate/internal/middleware"
	"ticketgate/internal/models"
	"ticketgate/internal/qr"
	"ticketgate/internal/repository/memory"
	"ticketgate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const password = "secret"

type testServer struct {
	router   *gin.Engine
	store    *memory.Store
	services *service.Services
}

func setupRouter(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	issuer, err := credential.NewIssuer("handler-test-secret")
	require.NoError(t, err)

	services := service.NewServices(service.Deps{
		Events:          store.Events(),
		Tickets:         store.Tickets(),
		Issuer:          issuer,
		Renderer:        qr.NewRenderer(128),
		CredentialGrace: time.Hour,
	})
	t.Cleanup(services.Checkins.Wait)

	r := gin.New()
	api := r.Group("/api")
	api.Use(middleware.BasicAuth(store.Users(), nil))
	NewHandlers(services).Register(api)

	return &testServer{router: r, store: store, services: services}
}

func (s *testServer) user(t *testing.T, email string) *models.User {
	t.Helper()
	sum := sha256.Sum256([]byte(password))
	u := &models.User{Email: email, PasswordHash: hex.EncodeToString(sum[:]), IsActive: true}
	require.NoError(t, s.store.Users().Create(context.Background(), u))
	return u
}

func (s *testServer) do(t *testing.T, method, path string, as *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.SetBasicAuth(as.Email, password)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) publishedEvent(t *testing.T, organizer *models.User, capacity int) models.EventResponse {
	t.Helper()
	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)

	w := s.do(t, http.MethodPost, "/api/events", organizer, models.CreateEventRequest{
		Title:    "Jazz night",
		StartsAt: start,
		EndsAt:   start.Add(3 * time.Hour),
		Price:    1250,
		Capacity: capacity,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.EventResponse](t, w)
	assert.Equal(t, models.EventDraft, created.Status)
	assert.Equal(t, "12.50", created.Price)

	w = s.do(t, http.MethodPatch, "/api/events/"+created.ID.String()+"/publish", organizer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.EventResponse](t, w)
}

func TestRequiresAuth(t *testing.T) {
	s := setupRouter(t)
	w := s.do(t, http.MethodGet, "/api/tickets", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBookAndScanFlow(t *testing.T) {
	s := setupRouter(t)
	organizer := s.user(t, "org@example.com")
	attendee := s.user(t, "guest@example.com")
	event := s.publishedEvent(t, organizer, 2)

	w := s.do(t, http.MethodPost, "/api/tickets", attendee, models.BookTicketRequest{EventID: event.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	booked := decode[models.BookTicketResponse](t, w)
	assert.Equal(t, models.TicketBooked, booked.Ticket.Status)
	assert.Equal(t, "12.50", booked.Ticket.Price)

	png, err := base64.StdEncoding.DecodeString(booked.QRCode)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	w = s.do(t, http.MethodPost, "/api/tickets", attendee, models.BookTicketRequest{EventID: event.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_booking", decode[map[string]string](t, w)["code"])

	stored, err := s.store.Tickets().GetByID(context.Background(), booked.Ticket.ID)
	require.NoError(t, err)

	scan := models.ScanTicketRequest{Credential: stored.Credential}

	w = s.do(t, http.MethodPatch, "/api/tickets/scan", attendee, scan)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/api/tickets/scan", organizer, scan)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	checked := decode[models.TicketResponse](t, w)
	assert.Equal(t, models.TicketCheckedIn, checked.Status)
	assert.NotNil(t, checked.CheckedInAt)

	w = s.do(t, http.MethodPatch, "/api/tickets/scan", organizer, scan)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_checked_in", decode[map[string]string](t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/events/"+event.ID.String(), attendee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[models.EventResponse](t, w).CheckedIn)
}

func TestScanRejectsGarbageCredential(t *testing.T) {
	s := setupRouter(t)
	organizer := s.user(t, "org@example.com")

	w := s.do(t, http.MethodPatch, "/api/tickets/scan", organizer, models.ScanTicketRequest{Credential: "not-a-credential"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credential", decode[map[string]string](t, w)["code"])
}

func TestBookUnknownEvent(t *testing.T) {
	s := setupRouter(t)
	attendee := s.user(t, "guest@example.com")

	w := s.do(t, http.MethodPost, "/api/tickets", attendee, models.BookTicketRequest{EventID: uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/tickets", attendee, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", decode[map[string]string](t, w)["code"])
}

func TestListTicketsPagination(t *testing.T) {
	s := setupRouter(t)
	organizer := s.user(t, "org@example.com")
	attendee := s.user(t, "guest@example.com")

	for i := 0; i < 3; i++ {
		event := s.publishedEvent(t, organizer, 5)
		w := s.do(t, http.MethodPost, "/api/tickets", attendee, models.BookTicketRequest{EventID: event.ID})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/tickets?limit=2&page=2", attendee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.ListTicketsResponse](t, w)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, "Jazz night", page.Items[0].EventTitle)

	w = s.do(t, http.MethodGet, "/api/tickets?page=9", attendee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[models.ListTicketsResponse](t, w)
	assert.Equal(t, 3, page.Total)
	assert.Empty(t, page.Items)

	for _, q := range []string{"limit=0", "limit=101", "page=-1", "limit=abc", "status=lost"} {
		w = s.do(t, http.MethodGet, "/api/tickets?"+q, attendee, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestCancelTicket(t *testing.T) {
	s := setupRouter(t)
	organizer := s.user(t, "org@example.com")
	attendee := s.user(t, "guest@example.com")
	stranger := s.user(t, "stranger@example.com")
	event := s.publishedEvent(t, organizer, 1)

	w := s.do(t, http.MethodPost, "/api/tickets", attendee, models.BookTicketRequest{EventID: event.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	ticketID := decode[models.BookTicketResponse](t, w).Ticket.ID

	req := models.CancelTicketRequest{TicketID: ticketID, Status: "canceled"}

	w = s.do(t, http.MethodPatch, "/api/tickets/cancel", stranger, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPatch, "/api/tickets/cancel", attendee, models.CancelTicketRequest{TicketID: ticketID, Status: "checked_in"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/tickets/cancel", attendee, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.TicketCanceled, decode[models.TicketResponse](t, w).Status)

	w = s.do(t, http.MethodGet, "/api/tickets/"+ticketID.String()+"/qr", attendee, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPatch, "/api/tickets/cancel", attendee, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTicketQR(t *testing.T) {
	s := setupRouter(t)
	organizer := s.user(t, "org@example.com")
	attendee := s.user(t, "guest@example.com")
	event := s.publishedEvent(t, organizer, 1)

	w := s.do(t, http.MethodPost, "/api/tickets", attendee, models.BookTicketRequest{EventID: event.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	ticketID := decode[models.BookTicketResponse](t, w).Ticket.ID

	w = s.do(t, http.MethodGet, "/api/tickets/"+ticketID.String()+"/qr", attendee, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = s.do(t, http.MethodGet, "/api/tickets/"+ticketID.String()+"/qr", organizer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/tickets/nope/qr", attendee, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventEndpoints(t *testing.T) {
	s := setupRouter(t)
	organizer := s.user(t, "org@example.com")
	other := s.user(t, "other@example.com")
	start := time.Now().Add(time.Hour).UTC()

	w := s.do(t, http.MethodPost, "/api/events", organizer, models.CreateEventRequest{
		Title: "Draft show", StartsAt: start, EndsAt: start.Add(time.Hour), Capacity: 10,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	draft := decode[models.EventResponse](t, w)

	title := "Renamed show"
	w = s.do(t, http.MethodPatch, "/api/events/"+draft.ID.String(), other, models.UpdateEventRequest{Title: &title})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPatch, "/api/events/"+draft.ID.String(), organizer, models.UpdateEventRequest{Title: &title})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, title, decode[models.EventResponse](t, w).Title)

	w = s.do(t, http.MethodPost, "/api/tickets", other, models.BookTicketRequest{EventID: draft.ID})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "event_not_bookable", decode[map[string]string](t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/events?status=draft", organizer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.ListEventsResponse](t, w)
	assert.Equal(t, 1, list.Total)

	w = s.do(t, http.MethodGet, "/api/events", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[models.ListEventsResponse](t, w).Total)

	published := s.publishedEvent(t, organizer, 3)
	w = s.do(t, http.MethodGet, "/api/events/search?q=jazz", other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Items []models.SearchEventsResponseItem `json:"items"`
		Total int                               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Equal(t, 1, found.Total)
	assert.Equal(t, published.ID, found.Items[0].ID)

	w = s.do(t, http.MethodPatch, "/api/events/"+published.ID.String()+"/cancel", organizer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EventCanceled, decode[models.EventResponse](t, w).Status)

	w = s.do(t, http.MethodGet, "/api/events/"+uuid.NewString(), organizer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
