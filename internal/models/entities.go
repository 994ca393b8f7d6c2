package models

import (
	"fmt"
	"strings"
	"time"

	apperrors "ticketgate/internal/errors"

	"github.com/google/uuid"
)

// User represents an account able to book tickets and organize events
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCanceled  EventStatus = "canceled"
)

// ParseEventStatus converts a client supplied value into an EventStatus
func ParseEventStatus(s string) (EventStatus, error) {
	switch st := EventStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case EventDraft, EventPublished, EventCanceled:
		return st, nil
	default:
		return "", apperrors.Validation("unknown event status %q", s)
	}
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	switch s {
	case EventDraft:
		return next == EventPublished
	case EventPublished:
		return next == EventCanceled
	default:
		return false
	}
}

// Event represents an event with finite ticket capacity
type Event struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	OrganizerID uuid.UUID   `json:"organizer_id" db:"organizer_id"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	StartsAt    time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt      time.Time   `json:"ends_at" db:"ends_at"`
	Price       int64       `json:"price" db:"price"`
	Capacity    int         `json:"capacity" db:"capacity"`
	CheckedIn   int         `json:"checked_in" db:"checked_in"`
	Status      EventStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// Validate checks the attributes an organizer controls.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return apperrors.Validation("title is required")
	}
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return apperrors.Validation("schedule window is required")
	}
	if !e.EndsAt.After(e.StartsAt) {
		return apperrors.Validation("ends_at must be after starts_at")
	}
	if e.Price < 0 {
		return apperrors.Validation("price must not be negative")
	}
	if e.Capacity <= 0 {
		return apperrors.Validation("capacity must be positive")
	}
	return nil
}

// Bookable reports whether new tickets may be issued for the event.
func (e *Event) Bookable() bool {
	return e.Status == EventPublished
}

type TicketStatus string

const (
	TicketBooked    TicketStatus = "booked"
	TicketCheckedIn TicketStatus = "checked_in"
	TicketCanceled  TicketStatus = "canceled"
)

// ParseTicketStatus converts a client supplied value into a TicketStatus
func ParseTicketStatus(s string) (TicketStatus, error) {
	switch st := TicketStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case TicketBooked, TicketCheckedIn, TicketCanceled:
		return st, nil
	default:
		return "", apperrors.Validation("unknown ticket status %q", s)
	}
}

// TicketState is the closed set {Booked, CheckedIn(at), Canceled}. The
// check-in timestamp exists only in the CheckedIn variant, so a state
// with a timestamp and a non checked-in status cannot be built.
type TicketState struct {
	status      TicketStatus
	checkedInAt time.Time
}

func BookedState() TicketState {
	return TicketState{status: TicketBooked}
}

func CheckedInState(at time.Time) TicketState {
	return TicketState{status: TicketCheckedIn, checkedInAt: at.UTC()}
}

func CanceledState() TicketState {
	return TicketState{status: TicketCanceled}
}

// TicketStateFromColumns rebuilds a state from its stored representation.
func TicketStateFromColumns(status string, checkedInAt *time.Time) (TicketState, error) {
	switch TicketStatus(status) {
	case TicketBooked:
		if checkedInAt != nil {
			return TicketState{}, fmt.Errorf("booked ticket carries checked_in_at")
		}
		return BookedState(), nil
	case TicketCanceled:
		if checkedInAt != nil {
			return TicketState{}, fmt.Errorf("canceled ticket carries checked_in_at")
		}
		return CanceledState(), nil
	case TicketCheckedIn:
		if checkedInAt == nil {
			return TicketState{}, fmt.Errorf("checked in ticket without checked_in_at")
		}
		return CheckedInState(*checkedInAt), nil
	default:
		return TicketState{}, fmt.Errorf("unknown ticket status %q", status)
	}
}

// Columns returns the stored representation of the state.
func (s TicketState) Columns() (string, *time.Time) {
	if s.status == TicketCheckedIn {
		at := s.checkedInAt
		return string(s.status), &at
	}
	return string(s.status), nil
}

func (s TicketState) Status() TicketStatus {
	return s.status
}

// CheckedInAt returns the check-in time, ok is false unless checked in.
func (s TicketState) CheckedInAt() (time.Time, bool) {
	if s.status != TicketCheckedIn {
		return time.Time{}, false
	}
	return s.checkedInAt, true
}

func (s TicketState) IsZero() bool {
	return s.status == ""
}

// CheckIn moves booked to checked in. Checked in and canceled are terminal.
func (s TicketState) CheckIn(at time.Time) (TicketState, error) {
	switch s.status {
	case TicketBooked:
		return CheckedInState(at), nil
	case TicketCheckedIn:
		return s, apperrors.ErrAlreadyCheckedIn
	case TicketCanceled:
		return s, apperrors.ErrTicketCanceled
	default:
		return s, apperrors.ErrInvalidTransition
	}
}

// Cancel moves booked to canceled.
func (s TicketState) Cancel() (TicketState, error) {
	switch s.status {
	case TicketBooked:
		return CanceledState(), nil
	case TicketCheckedIn:
		return s, apperrors.ErrAlreadyCheckedIn
	case TicketCanceled:
		return s, apperrors.ErrTicketCanceled
	default:
		return s, apperrors.ErrInvalidTransition
	}
}

// Ticket represents one reservation of one attendee for one event
type Ticket struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	EventID    uuid.UUID   `json:"event_id" db:"event_id"`
	UserID     uuid.UUID   `json:"user_id" db:"user_id"`
	State      TicketState `json:"-"`
	BookedAt   time.Time   `json:"booked_at" db:"booked_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
	Price      int64       `json:"price" db:"price"`
	Credential string      `json:"-" db:"credential"`
}

// TicketView is a ticket joined with the event attributes shown in listings
type TicketView struct {
	Ticket
	EventTitle    string    `json:"event_title" db:"event_title"`
	EventStartsAt time.Time `json:"event_starts_at" db:"event_starts_at"`
}

// TicketFilter describes an owner's ticket listing request
type TicketFilter struct {
	OwnerID uuid.UUID
	Status  *TicketStatus
	Search  string
	Limit   int
	Page    int
}

func (f TicketFilter) Offset() int {
	return f.Limit * (f.Page - 1)
}

// EventFilter describes an event listing request
type EventFilter struct {
	OrganizerID *uuid.UUID
	Status      *EventStatus
	Search      string
	Limit       int
	Page        int
}

func (f EventFilter) Offset() int {
	return f.Limit * (f.Page - 1)
}

// CounterDrift reports an event whose checked_in counter disagrees with
// the number of checked-in tickets
type CounterDrift struct {
	EventID          uuid.UUID `json:"event_id"`
	CheckedIn        int       `json:"checked_in"`
	CheckedInTickets int       `json:"checked_in_tickets"`
}
