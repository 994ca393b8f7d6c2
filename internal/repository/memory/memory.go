// Package memory keeps events, tickets and users in process memory.
//
// All three stores share one mutex, so admission, check-in and the event
// counter change under the same lock the way the Postgres stores change
// them under one transaction. Values are copied in and out; callers never
// hold a pointer into the store.
package memory

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/models"

	"github.com/google/uuid"
)

type Store struct {
	mu      sync.Mutex
	events  map[uuid.UUID]models.Event
	tickets map[uuid.UUID]models.Ticket
	users   map[uuid.UUID]models.User
	now     func() time.Time
}

func New() *Store {
	return &Store{
		events:  make(map[uuid.UUID]models.Event),
		tickets: make(map[uuid.UUID]models.Ticket),
		users:   make(map[uuid.UUID]models.User),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Events() *EventStore   { return &EventStore{s} }
func (s *Store) Tickets() *TicketStore { return &TicketStore{s} }
func (s *Store) Users() *UserStore     { return &UserStore{s} }

type EventStore struct{ s *Store }

func (r *EventStore) Create(_ context.Context, event *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Status = models.EventDraft
	event.CheckedIn = 0
	event.CreatedAt = r.s.now()
	event.UpdatedAt = event.CreatedAt

	r.s.events[event.ID] = *event
	return nil
}

func (r *EventStore) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	event, ok := r.s.events[id]
	if !ok {
		return nil, nil
	}
	return &event, nil
}

func (r *EventStore) Update(_ context.Context, event *models.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.events[event.ID]
	if !ok {
		return apperrors.ErrEventNotFound
	}
	if stored.Status != models.EventDraft {
		return apperrors.ErrInvalidTransition
	}

	stored.Title = event.Title
	stored.Description = event.Description
	stored.StartsAt = event.StartsAt
	stored.EndsAt = event.EndsAt
	stored.Price = event.Price
	stored.Capacity = event.Capacity
	stored.UpdatedAt = r.s.now()
	r.s.events[event.ID] = stored

	event.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *EventStore) TransitionStatus(_ context.Context, id uuid.UUID, from, to models.EventStatus) (*models.Event, error) {
	if !from.CanTransitionTo(to) {
		return nil, apperrors.ErrInvalidTransition
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	event, ok := r.s.events[id]
	if !ok {
		return nil, apperrors.ErrEventNotFound
	}
	if event.Status != from {
		return nil, apperrors.ErrInvalidTransition
	}

	event.Status = to
	event.UpdatedAt = r.s.now()
	r.s.events[id] = event
	return &event, nil
}

func (r *EventStore) List(_ context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []models.Event
	for _, e := range r.s.events {
		if filter.OrganizerID != nil && e.OrganizerID != *filter.OrganizerID {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if !containsFold(e.Title, filter.Search) {
			continue
		}
		matched = append(matched, e)
	}

	slices.SortFunc(matched, func(a, b models.Event) int {
		if c := b.StartsAt.Compare(a.StartsAt); c != 0 {
			return c
		}
		return bytes.Compare(b.ID[:], a.ID[:])
	})

	return page(matched, filter.Limit, filter.Offset()), len(matched), nil
}

func (r *EventStore) CheckedInDrift(_ context.Context) ([]models.CounterDrift, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	counts := make(map[uuid.UUID]int)
	for _, t := range r.s.tickets {
		if t.State.Status() == models.TicketCheckedIn {
			counts[t.EventID]++
		}
	}

	var drifts []models.CounterDrift
	for id, e := range r.s.events {
		if e.CheckedIn != counts[id] {
			drifts = append(drifts, models.CounterDrift{EventID: id, CheckedIn: e.CheckedIn, CheckedInTickets: counts[id]})
		}
	}
	return drifts, nil
}

type TicketStore struct{ s *Store }

// Reserve runs the admission checks and the insert under the store lock.
func (r *TicketStore) Reserve(_ context.Context, ticket *models.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	event, ok := r.s.events[ticket.EventID]
	if !ok {
		return apperrors.ErrEventNotFound
	}
	if !event.Bookable() {
		return apperrors.ErrEventNotBookable
	}

	active := 0
	for _, t := range r.s.tickets {
		if t.EventID != ticket.EventID || t.State.Status() == models.TicketCanceled {
			continue
		}
		if t.UserID == ticket.UserID {
			return apperrors.ErrDuplicateBooking
		}
		active++
	}
	if active >= event.Capacity {
		return apperrors.ErrCapacityExceeded
	}

	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	if ticket.BookedAt.IsZero() {
		ticket.BookedAt = r.s.now()
	}
	ticket.State = models.BookedState()
	ticket.UpdatedAt = ticket.BookedAt

	r.s.tickets[ticket.ID] = *ticket
	return nil
}

func (r *TicketStore) GetByID(_ context.Context, id uuid.UUID) (*models.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, nil
	}
	return &ticket, nil
}

func (r *TicketStore) GetActiveByEventAndUser(_ context.Context, eventID, userID uuid.UUID) (*models.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var found *models.Ticket
	for _, t := range r.s.tickets {
		t := t
		if t.EventID != eventID || t.UserID != userID {
			continue
		}
		if t.State.Status() != models.TicketCanceled {
			return &t, nil
		}
		if found == nil || t.BookedAt.After(found.BookedAt) {
			found = &t
		}
	}
	return found, nil
}

// CheckIn applies the booked to checked_in transition and the counter
// increment together, or neither.
func (r *TicketStore) CheckIn(_ context.Context, ticketID uuid.UUID, at time.Time) (*models.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ticket, ok := r.s.tickets[ticketID]
	if !ok {
		return nil, apperrors.ErrTicketNotFound
	}
	next, err := ticket.State.CheckIn(at)
	if err != nil {
		return nil, err
	}

	event := r.s.events[ticket.EventID]
	if event.Status != models.EventPublished {
		return nil, apperrors.ErrEventNotOpen
	}
	if event.CheckedIn >= event.Capacity {
		return nil, apperrors.ErrCapacityExceeded
	}

	ticket.State = next
	ticket.UpdatedAt = at
	event.CheckedIn++
	event.UpdatedAt = r.s.now()

	r.s.tickets[ticketID] = ticket
	r.s.events[event.ID] = event
	return &ticket, nil
}

func (r *TicketStore) Cancel(_ context.Context, ticketID, ownerID uuid.UUID, at time.Time) (*models.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ticket, ok := r.s.tickets[ticketID]
	if !ok || ticket.UserID != ownerID {
		return nil, apperrors.ErrTicketNotFound
	}
	next, err := ticket.State.Cancel()
	if err != nil {
		return nil, err
	}

	ticket.State = next
	ticket.UpdatedAt = at
	r.s.tickets[ticketID] = ticket
	return &ticket, nil
}

func (r *TicketStore) List(_ context.Context, filter models.TicketFilter) ([]models.TicketView, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []models.TicketView
	for _, t := range r.s.tickets {
		if t.UserID != filter.OwnerID {
			continue
		}
		if filter.Status != nil && t.State.Status() != *filter.Status {
			continue
		}
		event := r.s.events[t.EventID]
		if !containsFold(event.Title, filter.Search) {
			continue
		}
		matched = append(matched, models.TicketView{
			Ticket:        t,
			EventTitle:    event.Title,
			EventStartsAt: event.StartsAt,
		})
	}

	slices.SortFunc(matched, func(a, b models.TicketView) int {
		if c := b.BookedAt.Compare(a.BookedAt); c != 0 {
			return c
		}
		return bytes.Compare(b.ID[:], a.ID[:])
	})

	return page(matched, filter.Limit, filter.Offset()), len(matched), nil
}

type UserStore struct{ s *Store }

func (r *UserStore) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperrors.Validation("email %s is already registered", user.Email)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.RegisteredAt = r.s.now()
	r.s.users[user.ID] = *user
	return nil
}

func (r *UserStore) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (r *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

func containsFold(s, substr string) bool {
	return substr == "" || strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
