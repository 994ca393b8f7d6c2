package handlers

import (
	"net/http"
	"strconv"

	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/logger"
	"ticketgate/internal/middleware"
	"ticketgate/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handlers struct {
	services *service.Services
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{services: services}
}

var statusByKind = map[apperrors.Kind]int{
	apperrors.KindNotFound:     http.StatusNotFound,
	apperrors.KindConflict:     http.StatusConflict,
	apperrors.KindUnauthorized: http.StatusUnauthorized,
	apperrors.KindForbidden:    http.StatusForbidden,
	apperrors.KindValidation:   http.StatusBadRequest,
}

// respondError пишет классифицированную ошибку как {"error", "code"}.
// Неклассифицированные ошибки скрываются за 500.
func respondError(c *gin.Context, err error) {
	if e, ok := apperrors.As(err); ok {
		if status, known := statusByKind[e.Kind]; known {
			c.JSON(status, gin.H{"error": e.Message, "code": e.Code})
			return
		}
	}

	c.Error(err)
	logger.WithContext(c.Request.Context()).Error("Request failed", "error", err, "path", c.Request.URL.Path)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperrors.ErrValidation.Code})
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
	}
	return id, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, apperrors.Validation("%s must be a UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads an optional positive integer. Absent means zero, which the
// services replace with their default.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		respondError(c, apperrors.Validation("%s must be a positive integer", name))
		return 0, false
	}
	return v, true
}

func pagination(c *gin.Context) (limit, page int, ok bool) {
	if limit, ok = queryInt(c, "limit"); !ok {
		return 0, 0, false
	}
	if page, ok = queryInt(c, "page"); !ok {
		return 0, 0, false
	}
	return limit, page, true
}

// Register подключает все роуты API к группе
func (h *Handlers) Register(api *gin.RouterGroup) {
	events := api.Group("/events")
	{
		events.POST("", h.CreateEvent)
		events.GET("", h.ListEvents)
		events.GET("/search", h.SearchEvents)
		events.GET("/:id", h.GetEvent)
		events.PATCH("/:id", h.UpdateEvent)
		events.PATCH("/:id/publish", h.PublishEvent)
		events.PATCH("/:id/cancel", h.CancelEvent)
	}

	tickets := api.Group("/tickets")
	{
		tickets.POST("", h.BookTicket)
		tickets.GET("", h.ListTickets)
		tickets.GET("/:id/qr", h.TicketQR)
		tickets.PATCH("/cancel", h.CancelTicket)
		tickets.PATCH("/scan", h.ScanTicket)
	}
}
