package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ticketgate/internal/credential"
	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/logger"
	"ticketgate/internal/messaging"
	"ticketgate/internal/metrics"
	"ticketgate/internal/models"
	"ticketgate/internal/notify"

	"github.com/google/uuid"
)

const notifyTimeout = 10 * time.Second

type CheckinService struct {
	events    EventStore
	tickets   TicketStore
	issuer    *credential.Issuer
	publisher messaging.Publisher
	notifier  notify.Notifier
	now       func() time.Time

	inflight sync.WaitGroup
}

func NewCheckinService(d Deps) *CheckinService {
	return &CheckinService{
		events:    d.Events,
		tickets:   d.Tickets,
		issuer:    d.Issuer,
		publisher: d.Publisher,
		notifier:  d.Notifier,
		now:       d.Now,
	}
}

// ScanRequest is one presentation of a credential at a venue entrance.
type ScanRequest struct {
	Credential string
	// ScannerID is the authenticated caller. When set it must be the
	// organizer of the credential's event.
	ScannerID uuid.UUID
	// EventID, when set, is the event the scanner is admitting to.
	EventID *uuid.UUID
}

// ScanTicket checks the credential's ticket in. Of any number of concurrent
// scans of one credential exactly one succeeds; the rest get
// ErrAlreadyCheckedIn and the event counter moves once.
func (s *CheckinService) ScanTicket(ctx context.Context, req ScanRequest) (ticket *models.Ticket, err error) {
	started := time.Now()
	defer func() { metrics.RecordCheckin(err, started) }()

	now := s.now()
	claims, err := s.issuer.VerifyAt(req.Credential, now)
	if err != nil {
		return nil, err
	}
	if req.EventID != nil && *req.EventID != claims.EventID {
		return nil, apperrors.ErrInvalidCredential
	}

	event, err := s.events.GetByID(ctx, claims.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if event == nil {
		return nil, apperrors.ErrEventNotFound
	}
	if req.ScannerID != uuid.Nil && event.OrganizerID != req.ScannerID {
		return nil, apperrors.ErrForbidden
	}

	current, err := s.tickets.GetActiveByEventAndUser(ctx, claims.EventID, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if current == nil {
		return nil, apperrors.ErrTicketNotFound
	}
	// A different ticket id means the credential's own ticket was canceled
	// and the attendee booked again.
	if current.ID != claims.TicketID {
		return nil, apperrors.ErrTicketCanceled
	}
	if _, err := current.State.CheckIn(now); err != nil {
		return nil, err
	}

	ticket, err = s.tickets.CheckIn(ctx, current.ID, now)
	if err != nil {
		return nil, err
	}

	log := logger.WithContext(ctx).With("ticket_id", ticket.ID, "event_id", ticket.EventID)
	log.Info("Ticket checked in", "scanned_by", req.ScannerID)

	msg := models.TicketCheckedInMessage{
		TicketID:    ticket.ID,
		EventID:     ticket.EventID,
		UserID:      ticket.UserID,
		ScannedBy:   req.ScannerID,
		CheckedInAt: now,
	}
	if err := s.publisher.Publish(models.SubjectTicketCheckedIn, msg); err != nil {
		log.Error("Failed to publish ticket checked in event", "error", err, "event_type", models.SubjectTicketCheckedIn)
	}

	s.notifyOwner(ctx, ticket)

	return ticket, nil
}

// notifyOwner pushes the scan to the ticket owner without blocking the
// scanner. A failed push is logged only.
func (s *CheckinService) notifyOwner(ctx context.Context, ticket *models.Ticket) {
	at, _ := ticket.State.CheckedInAt()
	payload := models.TicketScannedNotification{
		TicketID:    ticket.ID,
		EventID:     ticket.EventID,
		Status:      string(ticket.State.Status()),
		CheckedInAt: at,
	}
	userID := ticket.UserID

	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(ctx, userID, models.NotificationTicketScanned, payload); err != nil {
			logger.WithContext(ctx).Warn("Failed to notify ticket owner",
				"error", err,
				"ticket_id", payload.TicketID)
		}
	}()
}

// Wait blocks until in-flight owner notifications finish.
func (s *CheckinService) Wait() {
	s.inflight.Wait()
}
