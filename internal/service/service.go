package service

import (
	"context"
	"time"

	"ticketgate/internal/credential"
	"ticketgate/internal/messaging"
	"ticketgate/internal/models"
	"ticketgate/internal/notify"
	"ticketgate/internal/search"

	"github.com/google/uuid"
)

// EventStore persists events. Implemented by repository.EventRepository and
// memory.EventStore.
type EventStore interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Update(ctx context.Context, event *models.Event) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.EventStatus) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	CheckedInDrift(ctx context.Context) ([]models.CounterDrift, error)
}

// TicketStore persists tickets. Reserve, CheckIn and Cancel are atomic with
// respect to each other and to concurrent calls of themselves.
type TicketStore interface {
	Reserve(ctx context.Context, ticket *models.Ticket) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	GetActiveByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Ticket, error)
	CheckIn(ctx context.Context, ticketID uuid.UUID, at time.Time) (*models.Ticket, error)
	Cancel(ctx context.Context, ticketID, ownerID uuid.UUID, at time.Time) (*models.Ticket, error)
	List(ctx context.Context, filter models.TicketFilter) ([]models.TicketView, int, error)
}

type QRRenderer interface {
	RenderQR(content string) ([]byte, error)
}

// QRCache keeps rendered QR images. Optional.
type QRCache interface {
	GetQR(ctx context.Context, ticketID uuid.UUID) ([]byte, error)
	SetQR(ctx context.Context, ticketID uuid.UUID, png []byte) error
	DeleteQR(ctx context.Context, ticketID uuid.UUID) error
}

// EventSearcher queries the public catalogue. Optional.
type EventSearcher interface {
	Search(ctx context.Context, query string, page, size int) ([]search.EventDocument, int64, error)
}

type Deps struct {
	Events    EventStore
	Tickets   TicketStore
	Issuer    *credential.Issuer
	Renderer  QRRenderer
	Publisher messaging.Publisher
	Notifier  notify.Notifier
	QRCache   QRCache
	Searcher  EventSearcher

	// CredentialGrace extends credential validity past the event end.
	CredentialGrace time.Duration
	Now             func() time.Time
}

type Services struct {
	Events       *EventService
	Reservations *ReservationService
	Checkins     *CheckinService
	Tickets      *TicketQueryService
}

func NewServices(d Deps) *Services {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Publisher == nil {
		d.Publisher = messaging.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}

	return &Services{
		Events:       NewEventService(d),
		Reservations: NewReservationService(d),
		Checkins:     NewCheckinService(d),
		Tickets:      NewTicketQueryService(d.Tickets),
	}
}
