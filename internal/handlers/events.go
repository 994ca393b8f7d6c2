package handlers

import (
	"net/http"

	"ticketgate/internal/models"

	"github.com/gin-gonic/gin"
)

func eventPage(items []models.Event, total, page, limit int) models.ListEventsResponse {
	resp := models.ListEventsResponse{
		Items: make([]models.EventResponse, len(items)),
		Total: total,
		Page:  page,
		Limit: limit,
	}
	for i := range items {
		resp.Items[i] = models.NewEventResponse(&items[i])
	}
	return resp
}

// CreateEvent - POST /api/events
// Создать событие в статусе draft
func (h *Handlers) CreateEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	event, err := h.services.Events.Create(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.NewEventResponse(event))
}

// ListEvents - GET /api/events
// События текущего организатора
func (h *Handlers) ListEvents(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, page, ok := pagination(c)
	if !ok {
		return
	}

	filter := models.EventFilter{
		OrganizerID: &userID,
		Search:      c.Query("q"),
		Limit:       limit,
		Page:        page,
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseEventStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Status = &status
	}

	result, err := h.services.Events.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, eventPage(result.Items, result.Total, result.Page, result.Limit))
}

// GetEvent - GET /api/events/:id
func (h *Handlers) GetEvent(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	event, err := h.services.Events.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewEventResponse(event))
}

// UpdateEvent - PATCH /api/events/:id
// Изменить черновик события
func (h *Handlers) UpdateEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	event, err := h.services.Events.UpdateDraft(c.Request.Context(), id, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewEventResponse(event))
}

// PublishEvent - PATCH /api/events/:id/publish
func (h *Handlers) PublishEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	event, err := h.services.Events.Publish(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewEventResponse(event))
}

// CancelEvent - PATCH /api/events/:id/cancel
func (h *Handlers) CancelEvent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	event, err := h.services.Events.Cancel(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewEventResponse(event))
}

// SearchEvents - GET /api/events/search
// Поиск по каталогу опубликованных событий
func (h *Handlers) SearchEvents(c *gin.Context) {
	limit, page, ok := pagination(c)
	if !ok {
		return
	}

	result, err := h.services.Events.Search(c.Request.Context(), c.Query("q"), limit, page)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": result.Items,
		"total": result.Total,
		"page":  result.Page,
		"limit": result.Limit,
	})
}
