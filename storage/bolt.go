package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const boltBucket = "device"

// BoltBackend stores values in a single bbolt bucket.
type BoltBackend struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the bolt file at path and makes sure the bucket exists.
func OpenBolt(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	// Timeout keeps a second process from blocking forever on the file lock.
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", boltBucket, err)
	}

	log.Debug().Str("path", path).Msg("Bolt device store opened")
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(_ context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		if bucket == nil {
			return fmt.Errorf("%s bucket not found", boltBucket)
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		// data is only valid inside the transaction.
		value, found = string(data), true
		return nil
	})
	return value, found, err
}

func (b *BoltBackend) Put(_ context.Context, key, value string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (b *BoltBackend) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

// Close releases the file lock.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
