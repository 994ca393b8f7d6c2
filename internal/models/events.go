package models

import (
	"time"

	"github.com/google/uuid"
)

// NATS subjects
const (
	SubjectEventPublished  = "event.published"
	SubjectEventCanceled   = "event.canceled"
	SubjectTicketBooked    = "ticket.booked"
	SubjectTicketCheckedIn = "ticket.checked_in"
	SubjectTicketCanceled  = "ticket.canceled"
)

// Notifier event names pushed to ticket owners
const (
	NotificationTicketScanned = "ticket:scanned"
)

// EventPublishedMessage carries the catalogue fields of a published event
type EventPublishedMessage struct {
	EventID     uuid.UUID `json:"event_id"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Price       int64     `json:"price"`
	Capacity    int       `json:"capacity"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventCanceledMessage is published when an organizer cancels an event
type EventCanceledMessage struct {
	EventID   uuid.UUID `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketBookedMessage is published after a ticket row is committed
type TicketBookedMessage struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketCheckedInMessage is published after a successful scan
type TicketCheckedInMessage struct {
	TicketID    uuid.UUID `json:"ticket_id"`
	EventID     uuid.UUID `json:"event_id"`
	UserID      uuid.UUID `json:"user_id"`
	ScannedBy   uuid.UUID `json:"scanned_by"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

// TicketCanceledMessage is published when an owner cancels a ticket
type TicketCanceledMessage struct {
	TicketID  uuid.UUID `json:"ticket_id"`
	EventID   uuid.UUID `json:"event_id"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketScannedNotification is the payload pushed to the ticket owner
type TicketScannedNotification struct {
	TicketID    uuid.UUID `json:"ticket_id"`
	EventID     uuid.UUID `json:"event_id"`
	Status      string    `json:"status"`
	CheckedInAt time.Time `json:"checked_in_at"`
}
