package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ticketgate/internal/database"
	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/models"

	"github.com/google/uuid"
)

const eventColumns = `id, organizer_id, title, description, starts_at, ends_at, price,
		       capacity, checked_in, status, created_at, updated_at`

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

func scanEvent(row rowScanner, extra ...any) (*models.Event, error) {
	event := &models.Event{}
	dest := []any{
		&event.ID,
		&event.OrganizerID,
		&event.Title,
		&event.Description,
		&event.StartsAt,
		&event.EndsAt,
		&event.Price,
		&event.Capacity,
		&event.CheckedIn,
		&event.Status,
		&event.CreatedAt,
		&event.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return event, nil
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Status = models.EventDraft
	event.CheckedIn = 0

	query := `
		INSERT INTO events (id, organizer_id, title, description, starts_at, ends_at, price, capacity, checked_in, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		event.ID,
		event.OrganizerID,
		event.Title,
		event.Description,
		event.StartsAt,
		event.EndsAt,
		event.Price,
		event.Capacity,
		event.Status,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	if isErrorCheckViolation(err) {
		return apperrors.Validation("event attributes violate constraints")
	}

	return err
}

func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return event, err
}

// Update rewrites the editable attributes of a draft event. Published and
// canceled events are not editable in place.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	query := `
		UPDATE events
		SET title = $1, description = $2, starts_at = $3, ends_at = $4,
		    price = $5, capacity = $6, updated_at = NOW()
		WHERE id = $7 AND status = 'draft'
		RETURNING updated_at`

	err := r.db.QueryRowContext(ctx, query,
		event.Title,
		event.Description,
		event.StartsAt,
		event.EndsAt,
		event.Price,
		event.Capacity,
		event.ID,
	).Scan(&event.UpdatedAt)
	if err == sql.ErrNoRows {
		return r.missOrConflict(ctx, event.ID)
	}
	if isErrorCheckViolation(err) {
		return apperrors.Validation("event attributes violate constraints")
	}

	return err
}

// TransitionStatus moves the event from one lifecycle status to the next
// only if it is still in the expected status.
func (r *EventRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.EventStatus) (*models.Event, error) {
	if !from.CanTransitionTo(to) {
		return nil, apperrors.ErrInvalidTransition
	}

	query := `
		UPDATE events SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + eventColumns

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id, from, to))
	if err == sql.ErrNoRows {
		return nil, r.missOrConflict(ctx, id)
	}

	return event, err
}

func (r *EventRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.ErrEventNotFound
	}
	return apperrors.ErrInvalidTransition
}

// List returns one page of events and the size of the whole filtered set.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	var args []any
	argIndex := 1

	where := ` WHERE 1=1`
	if filter.OrganizerID != nil {
		where += fmt.Sprintf(" AND organizer_id = $%d", argIndex)
		args = append(args, *filter.OrganizerID)
		argIndex++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND title ILIKE $%d", argIndex)
		args = append(args, containsPattern(filter.Search))
		argIndex++
	}

	query := `SELECT ` + eventColumns + `, COUNT(*) OVER() FROM events` + where +
		fmt.Sprintf(" ORDER BY starts_at DESC, id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset())

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []models.Event
	total := 0
	for rows.Next() {
		event, err := scanEvent(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(events) == 0 && filter.Offset() > 0 {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
	}

	return events, total, nil
}

// CheckedInDrift lists events whose checked_in counter differs from the
// number of checked-in tickets.
func (r *EventRepository) CheckedInDrift(ctx context.Context) ([]models.CounterDrift, error) {
	query := `
		SELECT e.id, e.checked_in, COUNT(t.id) FILTER (WHERE t.status = 'checked_in')
		FROM events e
		LEFT JOIN tickets t ON t.event_id = e.id
		GROUP BY e.id, e.checked_in
		HAVING e.checked_in <> COUNT(t.id) FILTER (WHERE t.status = 'checked_in')`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []models.CounterDrift
	for rows.Next() {
		var d models.CounterDrift
		if err := rows.Scan(&d.EventID, &d.CheckedIn, &d.CheckedInTickets); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}

	return drifts, rows.Err()
}
