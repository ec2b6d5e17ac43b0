package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/deckhand/internal/core/deployment"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Deployment Operations
// =============================================================================

// deploymentRow represents a deployment row in the database.
type deploymentRow struct {
	ID         string `db:"id"`
	Project    string `db:"project"`
	Descriptor string `db:"descriptor"`
	Status     string `db:"status"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func (r deploymentRow) toDeployment() Deployment {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	updated, _ := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	return Deployment{
		ID:         r.ID,
		Project:    r.Project,
		Descriptor: r.Descriptor,
		Status:     DeploymentStatus(r.Status),
		CreatedAt:  created,
		UpdatedAt:  updated,
	}
}

// CreateDeployment inserts a new deployment record.
func (s *SQLiteStore) CreateDeployment(ctx context.Context, d *Deployment) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	const query = `
		INSERT INTO deployments (id, project, descriptor, status, created_at, updated_at)
		VALUES (:id, :project, :descriptor, :status, :created_at, :updated_at)`

	_, err := s.db.NamedExecContext(ctx, query, deploymentRow{
		ID:         d.ID,
		Project:    d.Project,
		Descriptor: d.Descriptor,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateDeployment", "deployment", d.Project, "project already has a deployment", ErrDuplicateProject)
		}
		return NewStoreError("CreateDeployment", "deployment", d.ID, err.Error(), err)
	}
	return nil
}

// GetDeployment returns the deployment for a project.
func (s *SQLiteStore) GetDeployment(ctx context.Context, project string) (*Deployment, error) {
	var row deploymentRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM deployments WHERE project = ?`, project)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDeployment", "deployment", project, "not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDeployment", "deployment", project, err.Error(), err)
	}
	d := row.toDeployment()
	return &d, nil
}

// UpdateDeploymentStatus updates the status of a deployment.
func (s *SQLiteStore) UpdateDeploymentStatus(ctx context.Context, id string, status DeploymentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deployments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return NewStoreError("UpdateDeploymentStatus", "deployment", id, err.Error(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewStoreError("UpdateDeploymentStatus", "deployment", id, "not found", ErrNotFound)
	}
	return nil
}

// DeleteDeployment deletes a deployment and, via cascade, its instances.
func (s *SQLiteStore) DeleteDeployment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteDeployment", "deployment", id, err.Error(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewStoreError("DeleteDeployment", "deployment", id, "not found", ErrNotFound)
	}
	return nil
}

// ListDeployments returns all recorded deployments ordered by project.
func (s *SQLiteStore) ListDeployments(ctx context.Context) ([]Deployment, error) {
	var rows []deploymentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM deployments ORDER BY project`)
	if err != nil {
		return nil, NewStoreError("ListDeployments", "deployment", "", err.Error(), err)
	}
	result := make([]Deployment, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDeployment())
	}
	return result, nil
}

// =============================================================================
// Instance Operations
// =============================================================================

// instanceRow represents an instance row in the database.
type instanceRow struct {
	DeploymentID string `db:"deployment_id"`
	ServiceName  string `db:"service_name"`
	ContainerID  string `db:"container_id"`
	State        string `db:"state"`
	ExitCode     int    `db:"exit_code"`
	RestartCount int    `db:"restart_count"`
	StartedAt    string `db:"started_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r instanceRow) toRecord() InstanceRecord {
	started, _ := time.Parse(time.RFC3339Nano, r.StartedAt)
	updated, _ := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	return InstanceRecord{
		DeploymentID: r.DeploymentID,
		ServiceName:  r.ServiceName,
		ContainerID:  r.ContainerID,
		State:        deployment.InstanceState(r.State),
		ExitCode:     r.ExitCode,
		RestartCount: r.RestartCount,
		StartedAt:    started,
		UpdatedAt:    updated,
	}
}

// UpsertInstance inserts or replaces the record for a service instance.
func (s *SQLiteStore) UpsertInstance(ctx context.Context, rec *InstanceRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	const query = `
		INSERT INTO instances (deployment_id, service_name, container_id, state, exit_code, restart_count, started_at, updated_at)
		VALUES (:deployment_id, :service_name, :container_id, :state, :exit_code, :restart_count, :started_at, :updated_at)
		ON CONFLICT (deployment_id, service_name) DO UPDATE SET
			container_id = excluded.container_id,
			state = excluded.state,
			exit_code = excluded.exit_code,
			restart_count = excluded.restart_count,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at`

	_, err := s.db.NamedExecContext(ctx, query, instanceRow{
		DeploymentID: rec.DeploymentID,
		ServiceName:  rec.ServiceName,
		ContainerID:  rec.ContainerID,
		State:        string(rec.State),
		ExitCode:     rec.ExitCode,
		RestartCount: rec.RestartCount,
		StartedAt:    rec.StartedAt.Format(time.RFC3339Nano),
		UpdatedAt:    rec.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return NewStoreError("UpsertInstance", "instance", rec.ServiceName, err.Error(), err)
	}
	return nil
}

// ListInstances returns all instance records of a deployment ordered by service name.
func (s *SQLiteStore) ListInstances(ctx context.Context, deploymentID string) ([]InstanceRecord, error) {
	var rows []instanceRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM instances WHERE deployment_id = ? ORDER BY service_name`, deploymentID)
	if err != nil {
		return nil, NewStoreError("ListInstances", "instance", deploymentID, err.Error(), err)
	}
	result := make([]InstanceRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toRecord())
	}
	return result, nil
}

// DeleteInstances deletes all instance records of a deployment.
func (s *SQLiteStore) DeleteInstances(ctx context.Context, deploymentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE deployment_id = ?`, deploymentID)
	if err != nil {
		return NewStoreError("DeleteInstances", "instance", deploymentID, err.Error(), err)
	}
	return nil
}
