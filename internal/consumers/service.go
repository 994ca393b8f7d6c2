package consumers

import (
	"context"
	"fmt"
	"log/slog"

	"ticketgate/internal/config"
	"ticketgate/internal/database"
	"ticketgate/internal/messaging"
	"ticketgate/internal/models"
	"ticketgate/internal/repository"
	"ticketgate/internal/search"

	"github.com/nats-io/stan.go"
)

const queueGroup = "consumers"

type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	handlers *Handlers
	job      *CounterReconciliationJob
	subs     []stan.Subscription
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	if cfg.StoreDriver == "memory" {
		return nil, fmt.Errorf("consumers need the postgres store, STORE_DRIVER=%s", cfg.StoreDriver)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		db.Close()
		return nil, err
	}

	var indexer EventIndexer
	if cfg.Elasticsearch.Enabled {
		es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			slog.Warn("Elasticsearch unavailable, event messages are only logged", "error", err)
		} else {
			indexer = es
		}
	}

	repos := repository.NewRepositories(db)

	return &ConsumerService{
		db:       db,
		nats:     natsClient,
		handlers: NewHandlers(indexer),
		job:      NewCounterReconciliationJob(repos.Events, cfg.ReconcileInterval),
	}, nil
}

func (cs *ConsumerService) Start(ctx context.Context) error {
	slog.Info("Starting NATS consumers...")

	routes := []struct {
		subject string
		handle  HandlerFunc
	}{
		{models.SubjectEventPublished, cs.handlers.HandleEventPublished},
		{models.SubjectEventCanceled, cs.handlers.HandleEventCanceled},
		{models.SubjectTicketBooked, cs.handlers.HandleTicketBooked},
		{models.SubjectTicketCheckedIn, cs.handlers.HandleTicketCheckedIn},
		{models.SubjectTicketCanceled, cs.handlers.HandleTicketCanceled},
	}

	for _, r := range routes {
		sub, err := cs.nats.SubscribeQueue(r.subject, queueGroup, cs.handlers.ackOnSuccess(r.subject, r.handle))
		if err != nil {
			return err
		}
		cs.subs = append(cs.subs, sub)
	}

	cs.job.Start(ctx)

	slog.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	cs.job.Stop()

	// Close, not Unsubscribe: durable subscriptions keep their position.
	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
