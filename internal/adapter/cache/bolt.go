package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var bucketCache = []byte("cache")

// BoltBackend persists entries in a single bbolt file. Each value is prefixed
// with its expiry as unix nanoseconds; expired entries are purged on read.
type BoltBackend struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCache)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &BoltBackend{db: db, now: time.Now}, nil
}

func (b *BoltBackend) WithClock(now func() time.Time) *BoltBackend {
	b.now = now
	return b
}

func (b *BoltBackend) Get(_ context.Context, key string) ([]byte, error) {
	var (
		value   []byte
		expired bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCache).Get([]byte(key))
		if len(data) < 8 {
			return ErrMiss
		}
		expiresAt := int64(binary.BigEndian.Uint64(data[:8]))
		if b.now().UnixNano() >= expiresAt {
			expired = true
			return ErrMiss
		}
		value = make([]byte, len(data)-8)
		copy(value, data[8:])
		return nil
	})
	if expired {
		_ = b.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket(bucketCache).Delete([]byte(key))
		})
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BoltBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	data := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(data[:8], uint64(b.now().Add(ttl).UnixNano()))
	copy(data[8:], value)
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte(key), data)
	})
}

func (b *BoltBackend) DeleteMatching(_ context.Context, pattern string) (int, error) {
	match, err := newMatcher(pattern)
	if err != nil {
		return 0, err
	}

	deleted := 0
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCache)
		var keys [][]byte
		if err := bucket.ForEach(func(k, _ []byte) error {
			if match(string(k)) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	})
	return deleted, err
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
