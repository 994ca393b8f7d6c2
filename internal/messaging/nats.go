package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ticketgate/internal/logger"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
)

// Publisher sends domain messages to the bus. Services treat a publish
// failure as non-fatal.
type Publisher interface {
	Publish(subject string, data any) error
}

type NATSClient struct {
	conn stan.Conn
}

type Config struct {
	Enabled   bool
	URL       string
	ClusterID string
	ClientID  string
}

func NewNATSClient(cfg Config) (*NATSClient, error) {
	// Streaming rejects a second connection with the same client id, so
	// every process instance gets its own suffix.
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, clientID,
		stan.NatsURL(cfg.URL),
		stan.ConnectWait(5*time.Second),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			logger.Get().Error("NATS Streaming connection lost", "error", reason)
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	logger.Get().Info("Connected to NATS Streaming",
		"url", cfg.URL,
		"cluster_id", cfg.ClusterID,
		"client_id", clientID)

	return &NATSClient{conn: conn}, nil
}

// NewPublisher connects when the bus is enabled and returns a no-op
// publisher otherwise.
func NewPublisher(cfg Config) (Publisher, func() error, error) {
	if !cfg.Enabled {
		return Nop{}, func() error { return nil }, nil
	}

	client, err := NewNATSClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func (nc *NATSClient) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := nc.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	logger.Get().Debug("Published message", "subject", subject)
	return nil
}

func (nc *NATSClient) SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error) {
	sub, err := nc.conn.QueueSubscribe(subject, queue, handler,
		stan.DurableName(subject+"-"+queue+"-durable"),
		stan.SetManualAckMode(),
		stan.AckWait(30*time.Second),
		stan.MaxInflight(1))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: %w", subject, err)
	}

	logger.Get().Info("Subscribed to subject", "subject", subject, "queue", queue)
	return sub, nil
}

func (nc *NATSClient) Close() error {
	if nc.conn != nil {
		return nc.conn.Close()
	}
	return nil
}

// Nop discards every message.
type Nop struct{}

func (Nop) Publish(string, any) error { return nil }

// Recorder keeps published messages in memory, keyed by subject.
type Recorder struct {
	mu       sync.Mutex
	messages map[string][]json.RawMessage
}

func NewRecorder() *Recorder {
	return &Recorder{messages: make(map[string][]json.RawMessage)}
}

func (r *Recorder) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[subject] = append(r.messages[subject], payload)
	return nil
}

// Messages returns a copy of what was published on subject.
func (r *Recorder) Messages(subject string) []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]json.RawMessage(nil), r.messages[subject]...)
}
