package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FormatPrice renders an amount in minor currency units, 1250 -> "12.50"
func FormatPrice(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// CreateEventRequest - модель для создания события
type CreateEventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	EndsAt      time.Time `json:"ends_at" binding:"required"`
	Price       int64     `json:"price" binding:"gte=0"`
	Capacity    int       `json:"capacity" binding:"required,gt=0"`
}

// UpdateEventRequest - partial update of a draft event
type UpdateEventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
	Price       *int64     `json:"price"`
	Capacity    *int       `json:"capacity"`
}

// Apply copies the provided fields onto the event.
func (r *UpdateEventRequest) Apply(e *Event) {
	if r.Title != nil {
		e.Title = *r.Title
	}
	if r.Description != nil {
		e.Description = *r.Description
	}
	if r.StartsAt != nil {
		e.StartsAt = *r.StartsAt
	}
	if r.EndsAt != nil {
		e.EndsAt = *r.EndsAt
	}
	if r.Price != nil {
		e.Price = *r.Price
	}
	if r.Capacity != nil {
		e.Capacity = *r.Capacity
	}
}

// EventResponse - публичное представление события
type EventResponse struct {
	ID          uuid.UUID   `json:"id"`
	OrganizerID uuid.UUID   `json:"organizer_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	StartsAt    time.Time   `json:"starts_at"`
	EndsAt      time.Time   `json:"ends_at"`
	Price       string      `json:"price"`
	PriceMinor  int64       `json:"price_minor"`
	Capacity    int         `json:"capacity"`
	CheckedIn   int         `json:"checked_in"`
	Status      EventStatus `json:"status"`
}

func NewEventResponse(e *Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		OrganizerID: e.OrganizerID,
		Title:       e.Title,
		Description: e.Description,
		StartsAt:    e.StartsAt,
		EndsAt:      e.EndsAt,
		Price:       FormatPrice(e.Price),
		PriceMinor:  e.Price,
		Capacity:    e.Capacity,
		CheckedIn:   e.CheckedIn,
		Status:      e.Status,
	}
}

// ListEventsResponse - страница событий
type ListEventsResponse struct {
	Items []EventResponse `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// SearchEventsResponseItem - элемент результата поиска по каталогу
type SearchEventsResponseItem struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	Price    string    `json:"price"`
}

// BookTicketRequest - модель для бронирования билета
type BookTicketRequest struct {
	EventID uuid.UUID `json:"event_id" binding:"required"`
}

// TicketResponse - публичные поля билета, без сырого credential
type TicketResponse struct {
	ID          uuid.UUID    `json:"id"`
	EventID     uuid.UUID    `json:"event_id"`
	UserID      uuid.UUID    `json:"user_id"`
	Status      TicketStatus `json:"status"`
	BookedAt    time.Time    `json:"booked_at"`
	CheckedInAt *time.Time   `json:"checked_in_at"`
	Price       string       `json:"price"`
	PriceMinor  int64        `json:"price_minor"`
	EventTitle  string       `json:"event_title,omitempty"`
}

func NewTicketResponse(t *Ticket) TicketResponse {
	status, checkedInAt := t.State.Columns()
	return TicketResponse{
		ID:          t.ID,
		EventID:     t.EventID,
		UserID:      t.UserID,
		Status:      TicketStatus(status),
		BookedAt:    t.BookedAt,
		CheckedInAt: checkedInAt,
		Price:       FormatPrice(t.Price),
		PriceMinor:  t.Price,
	}
}

// BookTicketResponse - билет и QR-код в base64 (PNG)
type BookTicketResponse struct {
	Ticket TicketResponse `json:"ticket"`
	QRCode string         `json:"qr_png_base64"`
}

// ListTicketsResponse - страница билетов пользователя
type ListTicketsResponse struct {
	Items []TicketResponse `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// CancelTicketRequest - модель для отмены билета
type CancelTicketRequest struct {
	TicketID uuid.UUID `json:"ticket_id" binding:"required"`
	Status   string    `json:"status" binding:"required"`
}

// ScanTicketRequest - модель для сканирования QR на входе
type ScanTicketRequest struct {
	Credential string     `json:"credential" binding:"required"`
	EventID    *uuid.UUID `json:"event_id"`
}
