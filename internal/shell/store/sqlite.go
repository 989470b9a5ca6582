package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/slipway-sh/slipway/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

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

	// One connection serializes writes and keeps an in-memory database from
	// being split across pool connections.
	db.SetMaxOpenConns(1)

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
// Stack Rows
// =============================================================================

// stackRow represents a stack row in the database.
type stackRow struct {
	ID            int     `db:"id"`
	ReferenceID   string  `db:"reference_id"`
	Name          string  `db:"name"`
	Region        string  `db:"region"`
	ConnectionARN string  `db:"connection_arn"`
	RepoOwner     string  `db:"repo_owner"`
	RepoName      string  `db:"repo_name"`
	Branch        string  `db:"branch"`
	Status        string  `db:"status"`
	CurrentStep   string  `db:"current_step"`
	ErrorMessage  string  `db:"error_message"`
	Outputs       *string `db:"outputs"`
	CreatedAt     string  `db:"created_at"`
	UpdatedAt     string  `db:"updated_at"`
	CompletedAt   *string `db:"completed_at"`
}

func stackToRow(st *domain.Stack) (*stackRow, error) {
	row := &stackRow{
		ID:            st.ID,
		ReferenceID:   st.ReferenceID,
		Name:          st.Name,
		Region:        st.Region,
		ConnectionARN: st.ConnectionARN,
		RepoOwner:     st.RepoOwner,
		RepoName:      st.RepoName,
		Branch:        st.Branch,
		Status:        string(st.Status),
		CurrentStep:   st.CurrentStep,
		ErrorMessage:  st.ErrorMessage,
		CreatedAt:     st.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:     st.UpdatedAt.UTC().Format(timeLayout),
	}
	if len(st.Outputs) > 0 {
		b, err := json.Marshal(st.Outputs)
		if err != nil {
			return nil, NewStoreError("stackToRow", "stack", st.ReferenceID, "failed to marshal outputs", ErrInvalidData)
		}
		s := string(b)
		row.Outputs = &s
	}
	if st.CompletedAt != nil {
		s := st.CompletedAt.UTC().Format(timeLayout)
		row.CompletedAt = &s
	}
	return row, nil
}

func rowToStack(row *stackRow) (*domain.Stack, error) {
	st := &domain.Stack{
		ID:            row.ID,
		ReferenceID:   row.ReferenceID,
		Name:          row.Name,
		Region:        row.Region,
		ConnectionARN: row.ConnectionARN,
		RepoOwner:     row.RepoOwner,
		RepoName:      row.RepoName,
		Branch:        row.Branch,
		Status:        domain.StackStatus(row.Status),
		CurrentStep:   row.CurrentStep,
		ErrorMessage:  row.ErrorMessage,
		Outputs:       make(map[string]string),
	}
	if row.Outputs != nil && *row.Outputs != "" {
		if err := json.Unmarshal([]byte(*row.Outputs), &st.Outputs); err != nil {
			return nil, NewStoreError("rowToStack", "stack", row.ReferenceID, "failed to unmarshal outputs", ErrInvalidData)
		}
	}
	var err error
	if st.CreatedAt, err = time.Parse(timeLayout, row.CreatedAt); err != nil {
		return nil, NewStoreError("rowToStack", "stack", row.ReferenceID, "invalid created_at", ErrInvalidData)
	}
	if st.UpdatedAt, err = time.Parse(timeLayout, row.UpdatedAt); err != nil {
		return nil, NewStoreError("rowToStack", "stack", row.ReferenceID, "invalid updated_at", ErrInvalidData)
	}
	if row.CompletedAt != nil && *row.CompletedAt != "" {
		t, err := time.Parse(timeLayout, *row.CompletedAt)
		if err != nil {
			return nil, NewStoreError("rowToStack", "stack", row.ReferenceID, "invalid completed_at", ErrInvalidData)
		}
		st.CompletedAt = &t
	}
	return st, nil
}

// =============================================================================
// Stack Operations
// =============================================================================

// CreateStack inserts a new stack.
func (s *SQLiteStore) CreateStack(ctx context.Context, st *domain.Stack) error {
	row, err := stackToRow(st)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO stacks (reference_id, name, region, connection_arn, repo_owner, repo_name, branch,
			status, current_step, error_message, outputs, created_at, updated_at, completed_at)
		VALUES (:reference_id, :name, :region, :connection_arn, :repo_owner, :repo_name, :branch,
			:status, :current_step, :error_message, :outputs, :created_at, :updated_at, :completed_at)`,
		row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: stacks.name") {
			return NewStoreError("CreateStack", "stack", st.Name, "name already in use", ErrDuplicateName)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return NewStoreError("CreateStack", "stack", st.ReferenceID, "duplicate reference ID", ErrDuplicateID)
		}
		return NewStoreError("CreateStack", "stack", st.ReferenceID, err.Error(), err)
	}

	id, err := res.LastInsertId()
	if err == nil {
		st.ID = int(id)
	}
	return nil
}

// GetStack fetches a stack by reference ID.
func (s *SQLiteStore) GetStack(ctx context.Context, referenceID string) (*domain.Stack, error) {
	var row stackRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM stacks WHERE reference_id = ?`, referenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetStack", "stack", referenceID, "not found", ErrNotFound)
		}
		return nil, NewStoreError("GetStack", "stack", referenceID, err.Error(), err)
	}
	return rowToStack(&row)
}

// GetStackByName fetches a stack by its unique name.
func (s *SQLiteStore) GetStackByName(ctx context.Context, name string) (*domain.Stack, error) {
	var row stackRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM stacks WHERE name = ?`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetStackByName", "stack", name, "not found", ErrNotFound)
		}
		return nil, NewStoreError("GetStackByName", "stack", name, err.Error(), err)
	}
	return rowToStack(&row)
}

// ListStacks returns all stacks, newest first.
func (s *SQLiteStore) ListStacks(ctx context.Context) ([]domain.Stack, error) {
	var rows []stackRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM stacks ORDER BY created_at DESC`)
	if err != nil {
		return nil, NewStoreError("ListStacks", "stack", "", err.Error(), err)
	}

	stacks := make([]domain.Stack, 0, len(rows))
	for i := range rows {
		st, err := rowToStack(&rows[i])
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, *st)
	}
	return stacks, nil
}

// UpdateStack persists status, step, error, outputs and timestamps.
func (s *SQLiteStore) UpdateStack(ctx context.Context, st *domain.Stack) error {
	row, err := stackToRow(st)
	if err != nil {
		return err
	}

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE stacks SET
			status = :status,
			current_step = :current_step,
			error_message = :error_message,
			outputs = :outputs,
			updated_at = :updated_at,
			completed_at = :completed_at
		WHERE reference_id = :reference_id`,
		row)
	if err != nil {
		return NewStoreError("UpdateStack", "stack", st.ReferenceID, err.Error(), err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return NewStoreError("UpdateStack", "stack", st.ReferenceID, "not found", ErrNotFound)
	}
	return nil
}

// =============================================================================
// Resource Operations
// =============================================================================

type resourceRow struct {
	ID         int    `db:"id"`
	StackID    int    `db:"stack_id"`
	Ordinal    int    `db:"ordinal"`
	Kind       string `db:"kind"`
	Name       string `db:"name"`
	ProviderID string `db:"provider_id"`
}

func (s *SQLiteStore) stackID(ctx context.Context, stackRefID string) (int, error) {
	var id int
	err := s.db.GetContext(ctx, &id, `SELECT id FROM stacks WHERE reference_id = ?`, stackRefID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, NewStoreError("stackID", "stack", stackRefID, "not found", ErrNotFound)
		}
		return 0, NewStoreError("stackID", "stack", stackRefID, err.Error(), err)
	}
	return id, nil
}

// AddResources appends provisioned resources to a stack, preserving order.
func (s *SQLiteStore) AddResources(ctx context.Context, stackRefID string, resources []domain.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	stackID, err := s.stackID(ctx, stackRefID)
	if err != nil {
		return err
	}

	var next int
	err = s.db.GetContext(ctx, &next,
		`SELECT COALESCE(MAX(ordinal), -1) + 1 FROM stack_resources WHERE stack_id = ?`, stackID)
	if err != nil {
		return NewStoreError("AddResources", "resource", stackRefID, err.Error(), err)
	}

	for i, r := range resources {
		_, err = s.db.NamedExecContext(ctx, `
			INSERT INTO stack_resources (stack_id, ordinal, kind, name, provider_id)
			VALUES (:stack_id, :ordinal, :kind, :name, :provider_id)`,
			&resourceRow{
				StackID:    stackID,
				Ordinal:    next + i,
				Kind:       r.Kind,
				Name:       r.Name,
				ProviderID: r.ProviderID,
			})
		if err != nil {
			return NewStoreError("AddResources", "resource", stackRefID, err.Error(), err)
		}
	}
	return nil
}

// ListResources returns a stack's resources in apply order.
func (s *SQLiteStore) ListResources(ctx context.Context, stackRefID string) ([]domain.Resource, error) {
	stackID, err := s.stackID(ctx, stackRefID)
	if err != nil {
		return nil, err
	}

	var rows []resourceRow
	err = s.db.SelectContext(ctx, &rows,
		`SELECT * FROM stack_resources WHERE stack_id = ? ORDER BY ordinal ASC`, stackID)
	if err != nil {
		return nil, NewStoreError("ListResources", "resource", stackRefID, err.Error(), err)
	}

	resources := make([]domain.Resource, 0, len(rows))
	for _, row := range rows {
		resources = append(resources, domain.Resource{
			Kind:       row.Kind,
			Name:       row.Name,
			ProviderID: row.ProviderID,
		})
	}
	return resources, nil
}

// DeleteResources removes all resource records for a stack.
func (s *SQLiteStore) DeleteResources(ctx context.Context, stackRefID string) error {
	stackID, err := s.stackID(ctx, stackRefID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM stack_resources WHERE stack_id = ?`, stackID)
	if err != nil {
		return NewStoreError("DeleteResources", "resource", stackRefID, err.Error(), err)
	}
	return nil
}
