package eventstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/sweeney/fall-sensor/internal/logic"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresStore persists events in a fall_events table.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, applies pending migrations and returns a store.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "fall_sensor_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const (
	insertSQL = `INSERT INTO fall_events (id, detected_at, probability) VALUES ($1, $2, $3)`
	listSQL   = `SELECT id, detected_at, probability FROM fall_events ORDER BY detected_at DESC, recorded_at DESC`
	deleteSQL = `DELETE FROM fall_events`
)

// Insert appends the event. Ids are stored as opaque text; a missing id gets a uuid.
func (s *PostgresStore) Insert(ctx context.Context, event logic.FallEvent) (string, error) {
	id := event.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := s.db.ExecContext(ctx, insertSQL, id, event.Timestamp.UTC(), event.Probability); err != nil {
		return "", &PersistenceError{Op: "insert", Err: err}
	}
	return id, nil
}

// ListDesc returns every event, most recent first.
func (s *PostgresStore) ListDesc(ctx context.Context) ([]logic.FallEvent, error) {
	rows, err := s.db.QueryContext(ctx, listSQL)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []logic.FallEvent
	for rows.Next() {
		var e logic.FallEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Probability); err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return out, nil
}

// DeleteAll removes every event.
func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL); err != nil {
		return &PersistenceError{Op: "delete", Err: err}
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
