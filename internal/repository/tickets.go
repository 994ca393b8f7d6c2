package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ticketgate/internal/database"
	apperrors "ticketgate/internal/errors"
	"ticketgate/internal/models"

	"github.com/google/uuid"
)

const ticketColumns = `t.id, t.event_id, t.user_id, t.status, t.checked_in_at, t.booked_at, t.updated_at, t.price, t.credential`

type TicketRepository struct {
	db *database.DB
}

func NewTicketRepository(db *database.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func scanTicket(row rowScanner, extra ...any) (*models.Ticket, error) {
	ticket := &models.Ticket{}
	var status string
	var checkedInAt sql.NullTime

	dest := []any{
		&ticket.ID,
		&ticket.EventID,
		&ticket.UserID,
		&status,
		&checkedInAt,
		&ticket.BookedAt,
		&ticket.UpdatedAt,
		&ticket.Price,
		&ticket.Credential,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	var at *time.Time
	if checkedInAt.Valid {
		at = &checkedInAt.Time
	}
	state, err := models.TicketStateFromColumns(status, at)
	if err != nil {
		return nil, fmt.Errorf("ticket %s: %w", ticket.ID, err)
	}
	ticket.State = state

	return ticket, nil
}

// Reserve admits and inserts a booked ticket as one unit. The event row is
// locked for the duration of the transaction, so concurrent reservations
// for the same event are serialized between the capacity check and the
// insert. The partial unique index on (event_id, user_id) backs the
// duplicate check.
func (r *TicketRepository) Reserve(ctx context.Context, ticket *models.Ticket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status models.EventStatus
	var capacity int
	err = tx.QueryRowContext(ctx,
		`SELECT status, capacity FROM events WHERE id = $1 FOR UPDATE`, ticket.EventID,
	).Scan(&status, &capacity)
	if err == sql.ErrNoRows {
		return apperrors.ErrEventNotFound
	}
	if err != nil {
		return fmt.Errorf("lock event: %w", err)
	}

	if status != models.EventPublished {
		return apperrors.ErrEventNotBookable
	}

	var duplicate bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM tickets
			WHERE event_id = $1 AND user_id = $2 AND status <> 'canceled'
		)`, ticket.EventID, ticket.UserID).Scan(&duplicate)
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if duplicate {
		return apperrors.ErrDuplicateBooking
	}

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND status <> 'canceled'`, ticket.EventID,
	).Scan(&active)
	if err != nil {
		return fmt.Errorf("count tickets: %w", err)
	}
	if active >= capacity {
		return apperrors.ErrCapacityExceeded
	}

	ticket.State = models.BookedState()
	insertQuery := `
		INSERT INTO tickets (id, event_id, user_id, status, booked_at, updated_at, price, credential)
		VALUES ($1, $2, $3, 'booked', $4, $4, $5, $6)
		RETURNING booked_at, updated_at`

	err = tx.QueryRowContext(ctx, insertQuery,
		ticket.ID,
		ticket.EventID,
		ticket.UserID,
		ticket.BookedAt,
		ticket.Price,
		ticket.Credential,
	).Scan(&ticket.BookedAt, &ticket.UpdatedAt)
	if isErrorUniqueViolation(err) {
		return apperrors.ErrDuplicateBooking
	}
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}

	return tx.Commit()
}

func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id = $1`

	ticket, err := scanTicket(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return ticket, err
}

// GetActiveByEventAndUser resolves the ticket a credential points at: the live
// ticket for the pair, or the most recent canceled one when none is live.
func (r *TicketRepository) GetActiveByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets t
		WHERE t.event_id = $1 AND t.user_id = $2
		ORDER BY (t.status <> 'canceled') DESC, t.booked_at DESC
		LIMIT 1`

	ticket, err := scanTicket(r.db.QueryRowContext(ctx, query, eventID, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}

	return ticket, err
}

// CheckIn flips booked to checked_in and increments the event counter in
// the same transaction. The update is conditioned on the current status,
// so of several concurrent scans only one changes a row; the others see
// zero affected rows and never reach the counter.
func (r *TicketRepository) CheckIn(ctx context.Context, ticketID uuid.UUID, at time.Time) (*models.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE tickets t SET status = 'checked_in', checked_in_at = $2, updated_at = $2
		WHERE t.id = $1 AND t.status = 'booked'
		RETURNING ` + ticketColumns

	ticket, err := scanTicket(tx.QueryRowContext(ctx, updateQuery, ticketID, at))
	if err == sql.ErrNoRows {
		return nil, transitionError(ctx, tx, ticketID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("check in ticket: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE events SET checked_in = checked_in + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'published'`, ticket.EventID)
	if isErrorCheckViolation(err) {
		return nil, apperrors.ErrCapacityExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("increment checked_in: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, apperrors.ErrEventNotOpen
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return ticket, nil
}

// Cancel flips the owner's booked ticket to canceled, releasing its slot.
func (r *TicketRepository) Cancel(ctx context.Context, ticketID, ownerID uuid.UUID, at time.Time) (*models.Ticket, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		UPDATE tickets t SET status = 'canceled', updated_at = $3
		WHERE t.id = $1 AND t.user_id = $2 AND t.status = 'booked'
		RETURNING ` + ticketColumns

	ticket, err := scanTicket(tx.QueryRowContext(ctx, query, ticketID, ownerID, at))
	if err == sql.ErrNoRows {
		return nil, transitionError(ctx, tx, ticketID, &ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("cancel ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return ticket, nil
}

// transitionError explains why a conditional status update matched no row.
func transitionError(ctx context.Context, tx *sql.Tx, ticketID uuid.UUID, ownerID *uuid.UUID) error {
	var status string
	var owner uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT status, user_id FROM tickets WHERE id = $1`, ticketID).Scan(&status, &owner)
	if err == sql.ErrNoRows {
		return apperrors.ErrTicketNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != nil && owner != *ownerID {
		return apperrors.ErrTicketNotFound
	}

	switch models.TicketStatus(status) {
	case models.TicketCheckedIn:
		return apperrors.ErrAlreadyCheckedIn
	case models.TicketCanceled:
		return apperrors.ErrTicketCanceled
	default:
		return apperrors.ErrInvalidTransition
	}
}

// List returns one page of an owner's tickets, newest first, and the size
// of the whole filtered set.
func (r *TicketRepository) List(ctx context.Context, filter models.TicketFilter) ([]models.TicketView, int, error) {
	args := []any{filter.OwnerID}
	argIndex := 2

	where := ` WHERE t.user_id = $1`
	if filter.Status != nil {
		where += fmt.Sprintf(" AND t.status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND e.title ILIKE $%d", argIndex)
		args = append(args, containsPattern(filter.Search))
		argIndex++
	}

	from := ` FROM tickets t JOIN events e ON e.id = t.event_id`
	query := `SELECT ` + ticketColumns + `, e.title, e.starts_at, COUNT(*) OVER()` + from + where +
		fmt.Sprintf(" ORDER BY t.booked_at DESC, t.id DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset())

	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tickets []models.TicketView
	total := 0
	for rows.Next() {
		var view models.TicketView
		ticket, err := scanTicket(rows, &view.EventTitle, &view.EventStartsAt, &total)
		if err != nil {
			return nil, 0, err
		}
		view.Ticket = *ticket
		tickets = append(tickets, view)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(tickets) == 0 && filter.Offset() > 0 {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
	}

	return tickets, total, nil
}
