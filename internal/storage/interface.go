package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kurihiro0119/devops-ingest/internal/checkpoint"
	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const (
	DefaultRecordLimit = 100
	MaxRecordLimit     = 1000
)

// RecordFilter narrows a record listing. Zero values match everything.
type RecordFilter struct {
	Resource domain.Stage
	Project  string
	Limit    int
	Offset   int
}

// EffectiveLimit clamps the requested page size.
func (f RecordFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultRecordLimit
	case f.Limit > MaxRecordLimit:
		return MaxRecordLimit
	}
	return f.Limit
}

// Storage is the abstract interface for the persistence layer
type Storage interface {
	// Record operations. Records are only ever appended: a parent split
	// across batching windows is stored as several rows.
	SaveRecords(ctx context.Context, key domain.IntegrationKey, records []domain.EnrichedRecord) error
	GetRecords(ctx context.Context, key domain.IntegrationKey, filter RecordFilter) ([]*domain.StoredRecord, error)
	CountRecords(ctx context.Context, key domain.IntegrationKey) ([]domain.ResourceCount, error)

	// Checkpoint operations. A missing checkpoint reads as the zero value.
	GetCheckpoint(ctx context.Context, key domain.IntegrationKey) (checkpoint.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, key domain.IntegrationKey, cp checkpoint.Checkpoint) error
	DeleteCheckpoint(ctx context.Context, key domain.IntegrationKey) error

	// Scan run operations
	SaveScanRun(ctx context.Context, run *domain.ScanRun) error
	GetScanRun(ctx context.Context, id string) (*domain.ScanRun, error)
	GetScanRuns(ctx context.Context, key domain.IntegrationKey, limit int) ([]*domain.ScanRun, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}

// NewStoredRecord wraps a record for persistence.
func NewStoredRecord(key domain.IntegrationKey, record domain.EnrichedRecord, now time.Time) *domain.StoredRecord {
	return &domain.StoredRecord{
		ID:             uuid.NewString(),
		IntegrationKey: key,
		Resource:       record.Resource,
		Organization:   record.Project.Organization,
		Project:        record.Project.Name,
		Items:          record.Size(),
		Record:         record,
		CreatedAt:      now,
	}
}
