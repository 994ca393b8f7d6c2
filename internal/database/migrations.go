package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createExtensions,
		createUsersTable,
		createEventsTable,
		createTicketsTable,
		createTicketsActiveUniqueIndex,
		createTicketsOwnerIndex,
		createTicketsEventStatusIndex,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createExtensions = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    email VARCHAR(255) UNIQUE NOT NULL,
    password_hash VARCHAR(255) NOT NULL,
    display_name VARCHAR(200) NOT NULL DEFAULT '',
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id UUID PRIMARY KEY,
    organizer_id UUID NOT NULL REFERENCES users(id),
    title VARCHAR(500) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    starts_at TIMESTAMPTZ NOT NULL,
    ends_at TIMESTAMPTZ NOT NULL,
    price BIGINT NOT NULL DEFAULT 0,
    capacity INTEGER NOT NULL,
    checked_in INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'draft',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (ends_at > starts_at),
    CHECK (price >= 0),
    CHECK (capacity > 0),
    CHECK (checked_in >= 0 AND checked_in <= capacity),
    CHECK (status IN ('draft', 'published', 'canceled'))
);`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id UUID PRIMARY KEY,
    event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    user_id UUID NOT NULL REFERENCES users(id),
    status VARCHAR(20) NOT NULL DEFAULT 'booked',
    booked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    checked_in_at TIMESTAMPTZ,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    price BIGINT NOT NULL,
    credential TEXT NOT NULL,

    CHECK (status IN ('booked', 'checked_in', 'canceled')),
    CHECK ((status = 'checked_in') = (checked_in_at IS NOT NULL))
);`

// One live ticket per attendee per event. Canceled rows do not hold the slot.
const createTicketsActiveUniqueIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS tickets_event_user_active_idx
ON tickets (event_id, user_id) WHERE status <> 'canceled';`

const createTicketsOwnerIndex = `
CREATE INDEX IF NOT EXISTS tickets_user_booked_at_idx
ON tickets (user_id, booked_at DESC, id DESC);`

const createTicketsEventStatusIndex = `
CREATE INDEX IF NOT EXISTS tickets_event_status_idx
ON tickets (event_id, status);`
