package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticketgate/internal/credential"
	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/messaging"
	"ticketgate/internal/models"
	"ticketgate/internal/repository/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fakeRenderer struct {
	fail atomic.Bool
}

func (r *fakeRenderer) RenderQR(content string) ([]byte, error) {
	if r.fail.Load() {
		return nil, errors.New("renderer unavailable")
	}
	return []byte("png:" + content), nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, eventName string, _ any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if eventName == models.NotificationTicketScanned {
		n.calls = append(n.calls, userID)
	}
	return n.err
}

func (n *recordingNotifier) Calls() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.calls...)
}

type env struct {
	svc       *Services
	store     *memory.Store
	renderer  *fakeRenderer
	notifier  *recordingNotifier
	publisher *messaging.Recorder
	issuer    *credential.Issuer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	issuer, err := credential.NewIssuer("test-secret")
	require.NoError(t, err)

	e := &env{
		store:     memory.New(),
		renderer:  &fakeRenderer{},
		notifier:  &recordingNotifier{},
		publisher: messaging.NewRecorder(),
		issuer:    issuer,
	}
	e.svc = NewServices(Deps{
		Events:          e.store.Events(),
		Tickets:         e.store.Tickets(),
		Issuer:          issuer,
		Renderer:        e.renderer,
		Publisher:       e.publisher,
		Notifier:        e.notifier,
		CredentialGrace: time.Hour,
	})
	t.Cleanup(e.svc.Checkins.Wait)
	return e
}

func (e *env) publishedEvent(t *testing.T, capacity int) *models.Event {
	t.Helper()
	ctx := context.Background()
	organizer := uuid.New()
	start := time.Now().Add(24 * time.Hour)

	event, err := e.svc.Events.Create(ctx, organizer, &models.CreateEventRequest{
		Title:    "Rooftop set",
		StartsAt: start,
		EndsAt:   start.Add(2 * time.Hour),
		Price:    2500,
		Capacity: capacity,
	})
	require.NoError(t, err)

	event, err = e.svc.Events.Publish(ctx, event.ID, organizer)
	require.NoError(t, err)
	return event
}

func (e *env) scan(event *models.Event, cred string) (*models.Ticket, error) {
	return e.svc.Checkins.ScanTicket(context.Background(), ScanRequest{
		Credential: cred,
		ScannerID:  event.OrganizerID,
	})
}

func TestBookTicketNoOversell(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 5)

	const attempts = 40
	var booked, full atomic.Int32
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			_, err := e.svc.Reservations.BookTicket(context.Background(), event.ID, uuid.New())
			switch {
			case err == nil:
				booked.Add(1)
			case errors.Is(err, apperrors.ErrCapacityExceeded):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 5, booked.Load())
	assert.EqualValues(t, attempts-5, full.Load())
	assert.Len(t, e.publisher.Messages(models.SubjectTicketBooked), 5)
}

func TestBookTicketNoDuplicate(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 100)
	user := uuid.New()

	const attempts = 20
	var booked, dup atomic.Int32
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			_, err := e.svc.Reservations.BookTicket(context.Background(), event.ID, user)
			switch {
			case err == nil:
				booked.Add(1)
			case errors.Is(err, apperrors.ErrDuplicateBooking):
				dup.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, booked.Load())
	assert.EqualValues(t, attempts-1, dup.Load())
}

func TestBookTicketCapacityOneScenario(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 1)

	var g errgroup.Group
	errs := make([]error, 2)
	for i := range errs {
		i := i
		g.Go(func() error {
			_, errs[i] = e.svc.Reservations.BookTicket(context.Background(), event.ID, uuid.New())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, full int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if errors.Is(err, apperrors.ErrCapacityExceeded) {
			full++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)
}

func TestBookTicketResult(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 3)
	user := uuid.New()

	res, err := e.svc.Reservations.BookTicket(context.Background(), event.ID, user)
	require.NoError(t, err)

	assert.Equal(t, models.TicketBooked, res.Ticket.State.Status())
	_, checkedIn := res.Ticket.State.CheckedInAt()
	assert.False(t, checkedIn)
	assert.Equal(t, event.Price, res.Ticket.Price)
	assert.Equal(t, []byte("png:"+res.Ticket.Credential), res.QR)

	claims, err := e.issuer.Verify(res.Ticket.Credential)
	require.NoError(t, err)
	assert.Equal(t, credential.Subject{EventID: event.ID, UserID: user, TicketID: res.Ticket.ID}, claims.Subject())
	assert.Equal(t, event.EndsAt.Add(time.Hour).Unix(), claims.ExpiresAt)
}

func TestBookTicketNotBookable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Reservations.BookTicket(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)

	organizer := uuid.New()
	start := time.Now().Add(time.Hour)
	draft, err := e.svc.Events.Create(ctx, organizer, &models.CreateEventRequest{
		Title: "Draft", StartsAt: start, EndsAt: start.Add(time.Hour), Capacity: 10,
	})
	require.NoError(t, err)
	_, err = e.svc.Reservations.BookTicket(ctx, draft.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrEventNotBookable)

	event := e.publishedEvent(t, 10)
	_, err = e.svc.Events.Cancel(ctx, event.ID, event.OrganizerID)
	require.NoError(t, err)
	_, err = e.svc.Reservations.BookTicket(ctx, event.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrEventNotBookable)
}

func TestBookTicketRenderFailureKeepsTicket(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 3)
	user := uuid.New()
	ctx := context.Background()

	e.renderer.fail.Store(true)
	res, err := e.svc.Reservations.BookTicket(ctx, event.ID, user)
	require.NoError(t, err)
	assert.Nil(t, res.QR)

	stored, err := e.store.Tickets().GetByID(ctx, res.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketBooked, stored.State.Status())

	e.renderer.fail.Store(false)
	png, err := e.svc.Reservations.TicketQR(ctx, res.Ticket.ID, user)
	require.NoError(t, err)
	assert.Equal(t, []byte("png:"+res.Ticket.Credential), png)

	_, err = e.svc.Reservations.TicketQR(ctx, res.Ticket.ID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
}

func TestScanConcurrentExactlyOnce(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 10)
	res, err := e.svc.Reservations.BookTicket(context.Background(), event.ID, uuid.New())
	require.NoError(t, err)

	const scans = 25
	var ok, already atomic.Int32
	var g errgroup.Group
	for i := 0; i < scans; i++ {
		g.Go(func() error {
			_, err := e.scan(event, res.Ticket.Credential)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperrors.ErrAlreadyCheckedIn):
				already.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, scans-1, already.Load())

	stored, err := e.svc.Events.Get(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CheckedIn)

	e.svc.Checkins.Wait()
	assert.Len(t, e.notifier.Calls(), 1)
	assert.Len(t, e.publisher.Messages(models.SubjectTicketCheckedIn), 1)
}

func TestScanBackToBack(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 10)
	user := uuid.New()
	res, err := e.svc.Reservations.BookTicket(context.Background(), event.ID, user)
	require.NoError(t, err)

	ticket, err := e.scan(event, res.Ticket.Credential)
	require.NoError(t, err)
	assert.Equal(t, models.TicketCheckedIn, ticket.State.Status())
	_, ok := ticket.State.CheckedInAt()
	assert.True(t, ok)

	_, err = e.scan(event, res.Ticket.Credential)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyCheckedIn)

	stored, err := e.svc.Events.Get(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CheckedIn)

	e.svc.Checkins.Wait()
	assert.Equal(t, []uuid.UUID{user}, e.notifier.Calls())
}

func TestScanNotificationFailureDoesNotFail(t *testing.T) {
	e := newEnv(t)
	e.notifier.err = errors.New("push gateway down")
	event := e.publishedEvent(t, 10)
	res, err := e.svc.Reservations.BookTicket(context.Background(), event.ID, uuid.New())
	require.NoError(t, err)

	ticket, err := e.scan(event, res.Ticket.Credential)
	require.NoError(t, err)
	assert.Equal(t, models.TicketCheckedIn, ticket.State.Status())
}

func TestScanCredentialScoping(t *testing.T) {
	e := newEnv(t)
	eventA := e.publishedEvent(t, 10)
	eventB := e.publishedEvent(t, 10)
	res, err := e.svc.Reservations.BookTicket(context.Background(), eventA.ID, uuid.New())
	require.NoError(t, err)

	_, err = e.svc.Checkins.ScanTicket(context.Background(), ScanRequest{
		Credential: res.Ticket.Credential,
		ScannerID:  eventB.OrganizerID,
		EventID:    &eventB.ID,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	_, err = e.svc.Checkins.ScanTicket(context.Background(), ScanRequest{
		Credential: res.Ticket.Credential,
		ScannerID:  eventB.OrganizerID,
	})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = e.scan(eventA, "not-a-credential")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)

	stored, err := e.svc.Events.Get(context.Background(), eventA.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.CheckedIn)
}

func TestScanCanceledAndSuperseded(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 10)
	user := uuid.New()
	ctx := context.Background()

	first, err := e.svc.Reservations.BookTicket(ctx, event.ID, user)
	require.NoError(t, err)
	_, err = e.svc.Reservations.CancelTicket(ctx, first.Ticket.ID, user, "canceled")
	require.NoError(t, err)

	_, err = e.scan(event, first.Ticket.Credential)
	assert.ErrorIs(t, err, apperrors.ErrTicketCanceled)

	second, err := e.svc.Reservations.BookTicket(ctx, event.ID, user)
	require.NoError(t, err)

	_, err = e.scan(event, first.Ticket.Credential)
	assert.ErrorIs(t, err, apperrors.ErrTicketCanceled, "old credential must not admit the new ticket")

	_, err = e.scan(event, second.Ticket.Credential)
	assert.NoError(t, err)
}

func TestScanCanceledEvent(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 10)
	res, err := e.svc.Reservations.BookTicket(context.Background(), event.ID, uuid.New())
	require.NoError(t, err)

	_, err = e.svc.Events.Cancel(context.Background(), event.ID, event.OrganizerID)
	require.NoError(t, err)

	_, err = e.scan(event, res.Ticket.Credential)
	assert.ErrorIs(t, err, apperrors.ErrEventNotOpen)
}

func TestCancelThenRebook(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 10)
	user := uuid.New()
	ctx := context.Background()

	res, err := e.svc.Reservations.BookTicket(ctx, event.ID, user)
	require.NoError(t, err)

	_, err = e.svc.Reservations.CancelTicket(ctx, res.Ticket.ID, user, "checked_in")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = e.svc.Reservations.CancelTicket(ctx, res.Ticket.ID, user, "refunded")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	canceled, err := e.svc.Reservations.CancelTicket(ctx, res.Ticket.ID, user, "canceled")
	require.NoError(t, err)
	assert.Equal(t, models.TicketCanceled, canceled.State.Status())

	_, err = e.svc.Reservations.CancelTicket(ctx, res.Ticket.ID, user, "canceled")
	assert.ErrorIs(t, err, apperrors.ErrTicketCanceled)

	_, err = e.svc.Reservations.BookTicket(ctx, event.ID, user)
	assert.NoError(t, err)
	assert.Len(t, e.publisher.Messages(models.SubjectTicketCanceled), 1)
}

func TestCancelCheckedInTicket(t *testing.T) {
	e := newEnv(t)
	event := e.publishedEvent(t, 10)
	user := uuid.New()
	ctx := context.Background()

	res, err := e.svc.Reservations.BookTicket(ctx, event.ID, user)
	require.NoError(t, err)
	_, err = e.scan(event, res.Ticket.Credential)
	require.NoError(t, err)

	_, err = e.svc.Reservations.CancelTicket(ctx, res.Ticket.ID, user, "canceled")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyCheckedIn)
}

func TestListTickets(t *testing.T) {
	e := newEnv(t)
	user := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := e.publishedEvent(t, 10)
		_, err := e.svc.Reservations.BookTicket(ctx, event.ID, user)
		require.NoError(t, err)
	}

	page, err := e.svc.Tickets.ListTickets(ctx, models.TicketFilter{OwnerID: user})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, DefaultPageLimit, page.Limit)
	assert.Equal(t, 1, page.Page)

	page, err = e.svc.Tickets.ListTickets(ctx, models.TicketFilter{OwnerID: user, Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Total)

	_, err = e.svc.Tickets.ListTickets(ctx, models.TicketFilter{OwnerID: user, Limit: 101})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = e.svc.Tickets.ListTickets(ctx, models.TicketFilter{OwnerID: user, Page: -1})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
