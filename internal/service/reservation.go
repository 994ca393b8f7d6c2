package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ticketgate/internal/cache"
	"ticketgate/internal/credential"
	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/logger"
	"ticketgate/internal/messaging"
	"ticketgate/internal/metrics"
	"ticketgate/internal/models"

	"github.com/google/uuid"
)

type ReservationService struct {
	events    EventStore
	tickets   TicketStore
	issuer    *credential.Issuer
	renderer  QRRenderer
	publisher messaging.Publisher
	qrCache   QRCache
	grace     time.Duration
	now       func() time.Time
}

func NewReservationService(d Deps) *ReservationService {
	return &ReservationService{
		events:    d.Events,
		tickets:   d.Tickets,
		issuer:    d.Issuer,
		renderer:  d.Renderer,
		publisher: d.Publisher,
		qrCache:   d.QRCache,
		grace:     d.CredentialGrace,
		now:       d.Now,
	}
}

// BookingResult is a freshly booked ticket and its QR image. QR is nil when
// rendering failed after the ticket was stored; TicketQR renders it again.
type BookingResult struct {
	Ticket *models.Ticket
	QR     []byte
}

// BookTicket admits userID to eventID. The store repeats the bookable,
// duplicate and capacity checks atomically with the insert; the early
// status check here only saves a credential signature for requests that
// cannot succeed.
func (s *ReservationService) BookTicket(ctx context.Context, eventID, userID uuid.UUID) (result *BookingResult, err error) {
	defer func() { metrics.RecordBooking(err) }()

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, apperrors.ErrEventNotFound
	}
	if !event.Bookable() {
		return nil, apperrors.ErrEventNotBookable
	}

	ticket := &models.Ticket{
		ID:       uuid.New(),
		EventID:  event.ID,
		UserID:   userID,
		BookedAt: s.now(),
		Price:    event.Price,
	}

	ticket.Credential, err = s.issuer.Issue(credential.Subject{
		EventID:  event.ID,
		UserID:   userID,
		TicketID: ticket.ID,
	}, event.EndsAt.Add(s.grace))
	if err != nil {
		return nil, fmt.Errorf("failed to issue credential: %w", err)
	}

	if err := s.tickets.Reserve(ctx, ticket); err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx).With("ticket_id", ticket.ID, "event_id", ticket.EventID)
	log.Info("Ticket booked")

	msg := models.TicketBookedMessage{
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		UserID:    ticket.UserID,
		Price:     ticket.Price,
		Timestamp: ticket.BookedAt,
	}
	if err := s.publisher.Publish(models.SubjectTicketBooked, msg); err != nil {
		log.Error("Failed to publish ticket booked event", "error", err, "event_type", models.SubjectTicketBooked)
	}

	png, err := s.render(ctx, ticket)
	if err != nil {
		log.Error("Failed to render QR for booked ticket", "error", err)
		return &BookingResult{Ticket: ticket}, nil
	}

	return &BookingResult{Ticket: ticket, QR: png}, nil
}

// TicketQR renders the owner's ticket credential again.
func (s *ReservationService) TicketQR(ctx context.Context, ticketID, ownerID uuid.UUID) ([]byte, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil || ticket.UserID != ownerID {
		return nil, apperrors.ErrTicketNotFound
	}
	if ticket.State.Status() == models.TicketCanceled {
		return nil, apperrors.ErrTicketCanceled
	}

	return s.render(ctx, ticket)
}

func (s *ReservationService) render(ctx context.Context, ticket *models.Ticket) ([]byte, error) {
	if s.qrCache != nil {
		png, err := s.qrCache.GetQR(ctx, ticket.ID)
		if err == nil {
			return png, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logger.WithContext(ctx).Warn("QR cache lookup failed", "error", err, "ticket_id", ticket.ID)
		}
	}

	png, err := s.renderer.RenderQR(ticket.Credential)
	if err != nil {
		return nil, err
	}

	if s.qrCache != nil {
		if err := s.qrCache.SetQR(ctx, ticket.ID, png); err != nil {
			logger.WithContext(ctx).Warn("Failed to cache QR", "error", err, "ticket_id", ticket.ID)
		}
	}

	return png, nil
}

// CancelTicket moves the owner's booked ticket to canceled. status is the
// requested target and must be "canceled".
func (s *ReservationService) CancelTicket(ctx context.Context, ticketID, ownerID uuid.UUID, status string) (ticket *models.Ticket, err error) {
	defer func() { metrics.RecordCancellation(err) }()

	target, err := models.ParseTicketStatus(status)
	if err != nil {
		return nil, err
	}
	if target != models.TicketCanceled {
		return nil, apperrors.Validation("status must be %q", models.TicketCanceled)
	}

	ticket, err = s.tickets.Cancel(ctx, ticketID, ownerID, s.now())
	if err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx).With("ticket_id", ticket.ID, "event_id", ticket.EventID)
	log.Info("Ticket canceled")

	if s.qrCache != nil {
		if err := s.qrCache.DeleteQR(ctx, ticket.ID); err != nil {
			log.Warn("Failed to evict cached QR", "error", err)
		}
	}

	msg := models.TicketCanceledMessage{
		TicketID:  ticket.ID,
		EventID:   ticket.EventID,
		UserID:    ticket.UserID,
		Timestamp: ticket.UpdatedAt,
	}
	if err := s.publisher.Publish(models.SubjectTicketCanceled, msg); err != nil {
		log.Error("Failed to publish ticket canceled event", "error", err, "event_type", models.SubjectTicketCanceled)
	}

	return ticket, nil
}
