package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
	"github.com/kurihiro0119/devops-ingest/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db, now: time.Now}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tenant_id TEXT NOT NULL,
		integration_id TEXT NOT NULL,
		resource TEXT NOT NULL,
		organization TEXT NOT NULL,
		project TEXT NOT NULL,
		items INTEGER NOT NULL,
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_integration ON records(tenant_id, integration_id);
	CREATE INDEX IF NOT EXISTS idx_records_resource ON records(tenant_id, integration_id, resource);
	CREATE INDEX IF NOT EXISTS idx_records_project ON records(tenant_id, integration_id, project);

	CREATE TABLE IF NOT EXISTS checkpoints (
		tenant_id TEXT NOT NULL,
		integration_id TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (tenant_id, integration_id)
	);

	CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		integration_id TEXT NOT NULL,
		status TEXT NOT NULL,
		from_time TIMESTAMP NOT NULL,
		to_time TIMESTAMP NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		records INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scan_runs_integration ON scan_runs(tenant_id, integration_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRecords appends records in a single transaction
func (s *sqliteStorage) SaveRecords(ctx context.Context, key domain.IntegrationKey, records []domain.EnrichedRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, tenant_id, integration_id, resource, organization, project, items, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now().UTC()
	for _, record := range records {
		stored := storage.NewStoredRecord(key, record, now)
		dataJSON, err := json.Marshal(stored.Record)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			stored.ID,
			key.TenantID,
			key.IntegrationID,
			string(stored.Resource),
			stored.Organization,
			stored.Project,
			stored.Items,
			string(dataJSON),
			stored.CreatedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRecords lists stored records in insertion order
func (s *sqliteStorage) GetRecords(ctx context.Context, key domain.IntegrationKey, filter storage.RecordFilter) ([]*domain.StoredRecord, error) {
	query := `
		SELECT id, resource, organization, project, items, data, created_at
		FROM records
		WHERE tenant_id = ? AND integration_id = ?
	`
	args := []interface{}{key.TenantID, key.IntegrationID}
	if filter.Resource != "" {
		query += " AND resource = ?"
		args = append(args, string(filter.Resource))
	}
	if filter.Project != "" {
		query += " AND project = ?"
		args = append(args, filter.Project)
	}
	query += " ORDER BY seq LIMIT ? OFFSET ?"
	args = append(args, filter.EffectiveLimit(), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.StoredRecord
	for rows.Next() {
		record := &domain.StoredRecord{IntegrationKey: key}
		var resource, dataJSON string
		if err := rows.Scan(&record.ID, &resource, &record.Organization, &record.Project,
			&record.Items, &dataJSON, &record.CreatedAt); err != nil {
			return nil, err
		}
		record.Resource = domain.Stage(resource)
		if err := json.Unmarshal([]byte(dataJSON), &record.Record); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountRecords returns record and item counts per resource and project
func (s *sqliteStorage) CountRecords(ctx context.Context, key domain.IntegrationKey) ([]domain.ResourceCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource, organization, project, COUNT(*), COALESCE(SUM(items), 0)
		FROM records
		WHERE tenant_id = ? AND integration_id = ?
		GROUP BY resource, organization, project
		ORDER BY organization, project, resource
	`, key.TenantID, key.IntegrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.ResourceCount
	for rows.Next() {
		var c domain.ResourceCount
		var resource string
		if err := rows.Scan(&resource, &c.Organization, &c.Project, &c.Records, &c.Items); err != nil {
			return nil, err
		}
		c.Resource = domain.Stage(resource)
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// GetCheckpoint returns the saved checkpoint, or the zero checkpoint
func (s *sqliteStorage) GetCheckpoint(ctx context.Context, key domain.IntegrationKey) (checkpoint.Checkpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM checkpoints WHERE tenant_id = ? AND integration_id = ?
	`, key.TenantID, key.IntegrationID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Checkpoint{}, nil
	}
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	return checkpoint.Decode([]byte(data))
}

// SaveCheckpoint replaces the checkpoint of an integration
func (s *sqliteStorage) SaveCheckpoint(ctx context.Context, key domain.IntegrationKey, cp checkpoint.Checkpoint) error {
	data, err := cp.Encode()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (tenant_id, integration_id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id, integration_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, key.TenantID, key.IntegrationID, string(data), s.now().UTC())
	return err
}

// DeleteCheckpoint removes the checkpoint of an integration
func (s *sqliteStorage) DeleteCheckpoint(ctx context.Context, key domain.IntegrationKey) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE tenant_id = ? AND integration_id = ?
	`, key.TenantID, key.IntegrationID)
	return err
}

// SaveScanRun inserts or updates a scan run
func (s *sqliteStorage) SaveScanRun(ctx context.Context, run *domain.ScanRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, tenant_id, integration_id, status, from_time, to_time, attempts, records, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			records = excluded.records,
			message = excluded.message,
			updated_at = excluded.updated_at
	`,
		run.ID,
		run.IntegrationKey.TenantID,
		run.IntegrationKey.IntegrationID,
		run.Status,
		run.From,
		run.To,
		run.Attempts,
		run.Records,
		run.Message,
		run.CreatedAt,
		run.UpdatedAt,
	)
	return err
}

const scanRunColumns = `id, tenant_id, integration_id, status, from_time, to_time, attempts, records, message, created_at, updated_at`

func scanRun(row interface{ Scan(...interface{}) error }) (*domain.ScanRun, error) {
	var run domain.ScanRun
	err := row.Scan(&run.ID, &run.IntegrationKey.TenantID, &run.IntegrationKey.IntegrationID,
		&run.Status, &run.From, &run.To, &run.Attempts, &run.Records, &run.Message,
		&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetScanRun retrieves a scan run by ID
func (s *sqliteStorage) GetScanRun(ctx context.Context, id string) (*domain.ScanRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+scanRunColumns+` FROM scan_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return run, err
}

// GetScanRuns lists the latest scan runs of an integration, newest first
func (s *sqliteStorage) GetScanRuns(ctx context.Context, key domain.IntegrationKey, limit int) ([]*domain.ScanRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scanRunColumns+`
		FROM scan_runs
		WHERE tenant_id = ? AND integration_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, key.TenantID, key.IntegrationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
