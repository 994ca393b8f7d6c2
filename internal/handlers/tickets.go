package handlers

import (
	"encoding/base64"
	"net/http"

	"ticketgate/internal/models"
	"ticketgate/internal/service"

	"github.com/gin-gonic/gin"
)

// BookTicket - POST /api/tickets
// Забронировать билет на опубликованное событие
func (h *Handlers) BookTicket(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.BookTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.services.Reservations.BookTicket(c.Request.Context(), req.EventID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.BookTicketResponse{Ticket: models.NewTicketResponse(result.Ticket)}
	if result.QR != nil {
		resp.QRCode = base64.StdEncoding.EncodeToString(result.QR)
	}
	c.JSON(http.StatusCreated, resp)
}

// ListTickets - GET /api/tickets
// Билеты текущего пользователя, новые первыми
func (h *Handlers) ListTickets(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, page, ok := pagination(c)
	if !ok {
		return
	}

	filter := models.TicketFilter{
		OwnerID: userID,
		Search:  c.Query("q"),
		Limit:   limit,
		Page:    page,
	}
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseTicketStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Status = &status
	}

	result, err := h.services.Tickets.ListTickets(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.ListTicketsResponse{
		Items: make([]models.TicketResponse, len(result.Items)),
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	}
	for i := range result.Items {
		item := models.NewTicketResponse(&result.Items[i].Ticket)
		item.EventTitle = result.Items[i].EventTitle
		resp.Items[i] = item
	}
	c.JSON(http.StatusOK, resp)
}

// TicketQR - GET /api/tickets/:id/qr
func (h *Handlers) TicketQR(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	png, err := h.services.Reservations.TicketQR(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// CancelTicket - PATCH /api/tickets/cancel
func (h *Handlers) CancelTicket(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CancelTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ticket, err := h.services.Reservations.CancelTicket(c.Request.Context(), req.TicketID, userID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewTicketResponse(ticket))
}

// ScanTicket - PATCH /api/tickets/scan
// Пропуск по QR; сканировать может только организатор события
func (h *Handlers) ScanTicket(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.ScanTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ticket, err := h.services.Checkins.ScanTicket(c.Request.Context(), service.ScanRequest{
		Credential: req.Credential,
		ScannerID:  userID,
		EventID:    req.EventID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewTicketResponse(ticket))
}
