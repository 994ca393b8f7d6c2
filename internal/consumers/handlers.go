package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticketgate/internal/models"
	"ticketgate/internal/search"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
)

// EventIndexer keeps the search catalogue in step with the event lifecycle.
type EventIndexer interface {
	IndexEvent(ctx context.Context, doc search.EventDocument) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error
}

// errMalformed marks a payload that will never decode; such messages are
// acknowledged so the bus stops redelivering them.
type errMalformed struct{ err error }

func (e errMalformed) Error() string { return "malformed message: " + e.err.Error() }

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errMalformed{err}
	}
	return nil
}

type Handlers struct {
	indexer EventIndexer
	timeout time.Duration
}

// NewHandlers creates the message handlers. indexer may be nil, then event
// messages are only logged.
func NewHandlers(indexer EventIndexer) *Handlers {
	return &Handlers{indexer: indexer, timeout: 10 * time.Second}
}

func (h *Handlers) HandleEventPublished(ctx context.Context, data []byte) error {
	var msg models.EventPublishedMessage
	if err := decode(data, &msg); err != nil {
		return err
	}

	slog.Info("Processing event published", "event_id", msg.EventID, "title", msg.Title)

	if h.indexer == nil {
		return nil
	}
	if err := h.indexer.IndexEvent(ctx, search.DocumentFromMessage(msg)); err != nil {
		return fmt.Errorf("index event %s: %w", msg.EventID, err)
	}
	return nil
}

func (h *Handlers) HandleEventCanceled(ctx context.Context, data []byte) error {
	var msg models.EventCanceledMessage
	if err := decode(data, &msg); err != nil {
		return err
	}

	slog.Info("Processing event canceled", "event_id", msg.EventID)

	if h.indexer == nil {
		return nil
	}
	if err := h.indexer.DeleteEvent(ctx, msg.EventID); err != nil {
		return fmt.Errorf("remove event %s from index: %w", msg.EventID, err)
	}
	return nil
}

func (h *Handlers) HandleTicketBooked(_ context.Context, data []byte) error {
	var msg models.TicketBookedMessage
	if err := decode(data, &msg); err != nil {
		return err
	}

	slog.Info("Audit: ticket booked",
		"ticket_id", msg.TicketID,
		"event_id", msg.EventID,
		"user_id", msg.UserID,
		"price", models.FormatPrice(msg.Price),
		"at", msg.Timestamp)
	return nil
}

func (h *Handlers) HandleTicketCheckedIn(_ context.Context, data []byte) error {
	var msg models.TicketCheckedInMessage
	if err := decode(data, &msg); err != nil {
		return err
	}

	slog.Info("Audit: ticket checked in",
		"ticket_id", msg.TicketID,
		"event_id", msg.EventID,
		"user_id", msg.UserID,
		"scanned_by", msg.ScannedBy,
		"at", msg.CheckedInAt)
	return nil
}

func (h *Handlers) HandleTicketCanceled(_ context.Context, data []byte) error {
	var msg models.TicketCanceledMessage
	if err := decode(data, &msg); err != nil {
		return err
	}

	slog.Info("Audit: ticket canceled",
		"ticket_id", msg.TicketID,
		"event_id", msg.EventID,
		"user_id", msg.UserID,
		"at", msg.Timestamp)
	return nil
}

// HandlerFunc processes one message payload.
type HandlerFunc func(ctx context.Context, data []byte) error

// ackOnSuccess adapts a HandlerFunc to a manual-ack subscription. A failed
// message is left unacknowledged and comes back after AckWait.
func (h *Handlers) ackOnSuccess(subject string, fn HandlerFunc) stan.MsgHandler {
	return func(m *stan.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		err := fn(ctx, m.Data)
		if err != nil {
			var malformed errMalformed
			if !errors.As(err, &malformed) {
				slog.Error("Failed to process message, will be redelivered",
					"subject", subject, "sequence", m.Sequence, "error", err)
				return
			}
			slog.Error("Dropping malformed message", "subject", subject, "sequence", m.Sequence, "error", err)
		}

		if err := m.Ack(); err != nil {
			slog.Error("Failed to ack message", "subject", subject, "sequence", m.Sequence, "error", err)
		}
	}
}
