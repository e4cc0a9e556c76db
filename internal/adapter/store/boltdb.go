package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"finrag/internal/domain"
)

var (
	bucketChunks = []byte("chunks")
	bucketMeta   = []byte("meta")
)

// BoltStore keeps chunk text and metadata for one index file.
type BoltStore struct {
	db   *bbolt.DB
	path string
}

type storedChunk struct {
	DocID    string            `json:"doc_id"`
	Index    int               `json:"index"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func OpenBoltStore(path string, readOnly bool) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	if !readOnly {
		err = db.Update(func(tx *bbolt.Tx) error {
			for _, b := range [][]byte{bucketChunks, bucketMeta, bucketVectors} {
				if _, err := tx.CreateBucketIfNotExists(b); err != nil {
					return fmt.Errorf("failed to create bucket %s: %w", b, err)
				}
			}
			return nil
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &BoltStore{db: db, path: path}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) Path() string {
	return s.path
}

// PutChunks writes all chunks in one transaction.
func (s *BoltStore) PutChunks(chunks []domain.Chunk) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, chunk := range chunks {
			data, err := json.Marshal(storedChunk{
				DocID:    chunk.DocID,
				Index:    chunk.Index,
				Text:     chunk.Text,
				Metadata: chunk.Metadata,
			})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(chunk.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetChunk(id string) (domain.Chunk, error) {
	chunks, err := s.GetChunks([]string{id})
	if err != nil {
		return domain.Chunk{}, err
	}
	if len(chunks) == 0 {
		return domain.Chunk{}, fmt.Errorf("chunk not found: %s", id)
	}
	return chunks[0], nil
}

// GetChunks loads chunks in the order of ids, skipping ids that are absent.
func (s *BoltStore) GetChunks(ids []string) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b == nil {
			return fmt.Errorf("%w: chunks bucket missing", domain.ErrIndexCorrupt)
		}
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var stored storedChunk
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("%w: chunk %s: %v", domain.ErrIndexCorrupt, id, err)
			}
			chunks = append(chunks, domain.Chunk{
				ID:       id,
				DocID:    stored.DocID,
				Index:    stored.Index,
				Text:     stored.Text,
				Metadata: stored.Metadata,
			})
		}
		return nil
	})
	return chunks, err
}

func (s *BoltStore) CountChunks() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketChunks); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// CopyTo writes a consistent snapshot of the database to path.
func (s *BoltStore) CopyTo(path string) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
