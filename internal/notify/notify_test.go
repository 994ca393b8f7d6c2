package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubNubNotifierChannel(t *testing.T) {
	userID := uuid.New()

	var gotChannel string
	var gotMessage any
	n := &PubNubNotifier{publish: func(_ context.Context, channel string, message any) error {
		gotChannel = channel
		gotMessage = message
		return nil
	}}

	err := n.Notify(context.Background(), userID, "ticket:scanned", map[string]string{"ticket_id": "t1"})
	require.NoError(t, err)

	assert.Equal(t, "user-"+userID.String(), gotChannel)
	msg, ok := gotMessage.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ticket:scanned", msg["type"])
}

func TestPubNubNotifierError(t *testing.T) {
	n := &PubNubNotifier{publish: func(context.Context, string, any) error { return errors.New("network down") }}

	err := n.Notify(context.Background(), uuid.New(), "ticket:scanned", nil)
	assert.ErrorContains(t, err, "network down")
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Notify(context.Background(), uuid.New(), "x", nil))
}

func TestPubNubNotifierStopsAtDeadline(t *testing.T) {
	n := &PubNubNotifier{publish: func(ctx context.Context, _ string, _ any) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := n.Notify(ctx, uuid.New(), "ticket:scanned", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 2*time.Second)
}
