package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

const rootBucket = "ingestion_cache"

type boltEntry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Bolt is an IngestionCache backed by a bbolt file.
// Bucket "ingestion_cache" -> bucket "<tenant>/<integration>" -> name: JSON entry
type Bolt struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBolt opens (or creates) the cache file. A zero ttl keeps entries forever.
func NewBolt(path string, ttl time.Duration) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db, ttl: ttl, now: time.Now}, nil
}

func (b *Bolt) Enabled() bool { return true }

func (b *Bolt) Read(ctx context.Context, key domain.IntegrationKey, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var entry *boltEntry
	err := b.db.View(func(tx *bbolt.Tx) error {
		scope := tx.Bucket([]byte(rootBucket)).Bucket([]byte(key.String()))
		if scope == nil {
			return nil
		}
		val := scope.Get([]byte(name))
		if val == nil {
			return nil
		}
		entry = &boltEntry{}
		return json.Unmarshal(val, entry)
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache entry %s: %w", name, err)
	}
	if entry == nil || (!entry.ExpiresAt.IsZero() && b.now().After(entry.ExpiresAt)) {
		return "", false, nil
	}
	return entry.Value, true, nil
}

func (b *Bolt) Write(ctx context.Context, key domain.IntegrationKey, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := boltEntry{Value: value}
	if b.ttl > 0 {
		entry.ExpiresAt = b.now().Add(b.ttl)
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		scope, err := tx.Bucket([]byte(rootBucket)).CreateBucketIfNotExists([]byte(key.String()))
		if err != nil {
			return err
		}
		return scope.Put([]byte(name), val)
	})
}

// Purge drops every entry of one integration.
func (b *Bolt) Purge(key domain.IntegrationKey) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket([]byte(rootBucket)).DeleteBucket([]byte(key.String()))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
