// Package notify pushes best-effort messages to a user's realtime channel.
package notify

import (
	"context"
	"fmt"

	"ticketgate/internal/logger"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go/v7"
)

// Notifier delivers eventName with payload to userID. Delivery is not
// guaranteed and callers must not depend on it.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventName string, payload any) error
}

type Config struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

type PubNubNotifier struct {
	publish func(ctx context.Context, channel string, message any) error
}

func NewPubNubNotifier(cfg Config) *PubNubNotifier {
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey

	pn := pubnub.NewPubNub(pnConfig)

	return &PubNubNotifier{
		publish: func(ctx context.Context, channel string, message any) error {
			_, status, err := pn.PublishWithContext(ctx).
				Channel(channel).
				Message(message).
				Execute()
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return fmt.Errorf("%w: %v", ctxErr, err)
				}
				return err
			}
			if status.Error != nil {
				return status.Error
			}
			return nil
		},
	}
}

// UserChannel is the channel a client subscribes to for its own updates.
func UserChannel(userID uuid.UUID) string {
	return "user-" + userID.String()
}

// Notify publishes to the user's channel. The push is abandoned when ctx
// is done.
func (n *PubNubNotifier) Notify(ctx context.Context, userID uuid.UUID, eventName string, payload any) error {
	message := map[string]any{
		"type":    eventName,
		"payload": payload,
	}

	if err := n.publish(ctx, UserChannel(userID), message); err != nil {
		return fmt.Errorf("pubnub publish %s: %w", eventName, err)
	}

	logger.WithContext(ctx).Debug("Notification published",
		"event_name", eventName,
		"channel", UserChannel(userID))
	return nil
}

// Nop drops every notification. Used when no push keys are configured.
type Nop struct{}

func (Nop) Notify(context.Context, uuid.UUID, string, any) error { return nil }
