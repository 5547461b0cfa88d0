package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string, maxConns, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Migrate applies pending schema migrations from the given source,
// e.g. "file://migrations".
func Migrate(db *sqlx.DB, sourceURL string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Incident operations

func (r *Repository) CreateIncident(ctx context.Context, inc *Incident) error {
	query := `
		INSERT INTO incidents (
			id, service_id, nest_id, severity, started_at,
			affected_checks, details
		) VALUES (
			:id, :service_id, :nest_id, :severity, :started_at,
			:affected_checks, :details
		)`

	_, err := r.db.NamedExecContext(ctx, query, inc)
	return err
}

func (r *Repository) GetActiveIncident(ctx context.Context, serviceID string) (*Incident, error) {
	var inc Incident
	query := `
		SELECT * FROM incidents
		WHERE service_id = $1 AND resolved_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1`
	err := r.db.GetContext(ctx, &inc, query, serviceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func (r *Repository) UpdateIncident(ctx context.Context, inc *Incident) error {
	query := `
		UPDATE incidents SET
			severity = :severity,
			resolved_at = :resolved_at,
			acknowledged_at = :acknowledged_at,
			acknowledged_by = :acknowledged_by,
			affected_checks = :affected_checks,
			details = :details
		WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, inc)
	return err
}

func (r *Repository) GetIncident(ctx context.Context, incidentID string) (*Incident, error) {
	var inc Incident
	err := r.db.GetContext(ctx, &inc, `SELECT * FROM incidents WHERE id = $1`, incidentID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("incident not found")
	}
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func (r *Repository) ListIncidents(ctx context.Context, nestID string, limit, offset int) ([]*Incident, error) {
	incidents := []*Incident{}
	query := `
		SELECT * FROM incidents
		WHERE nest_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3`

	err := r.db.SelectContext(ctx, &incidents, query, nestID, limit, offset)
	return incidents, err
}

func (r *Repository) CountOpenIncidents(ctx context.Context, nestID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM incidents WHERE nest_id = $1 AND resolved_at IS NULL`
	err := r.db.GetContext(ctx, &n, query, nestID)
	return n, err
}

// RecordAudit satisfies resilience.AuditSink.
func (r *Repository) RecordAudit(ctx context.Context, action, actor, target, reason string) error {
	event := &AuditEvent{
		ID:        uuid.New().String(),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	query := `
		INSERT INTO audit_events (id, action, actor, target, reason, created_at)
		VALUES (:id, :action, :actor, :target, :reason, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, event)
	return err
}

func (r *Repository) ListAuditEvents(ctx context.Context, limit, offset int) ([]*AuditEvent, error) {
	events := []*AuditEvent{}
	query := `
		SELECT * FROM audit_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	err := r.db.SelectContext(ctx, &events, query, limit, offset)
	return events, err
}
