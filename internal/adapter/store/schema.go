package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"finrag/internal/domain"
)

// CurrentSchemaVersion is bumped on breaking changes to the index layout.
const CurrentSchemaVersion = 1

var keySchema = []byte("schema")

type SchemaInfo struct {
	Version        int       `json:"version"`
	IndexName      string    `json:"index_name"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	ChunkCount     int       `json:"chunk_count"`
	BuiltAt        time.Time `json:"built_at"`
}

func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info *SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}
		data := b.Get(keySchema)
		if data == nil {
			return nil
		}
		info = &SchemaInfo{}
		return json.Unmarshal(data, info)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: schema: %v", domain.ErrIndexCorrupt, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: schema info missing", domain.ErrIndexCorrupt)
	}
	return info, nil
}

func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySchema, data)
	})
}

// CheckCompatible verifies that an index can be searched with the given
// embedding model and dimension.
func (info *SchemaInfo) CheckCompatible(model string, dimension int) error {
	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("%w: created by newer version (v%d > v%d)", domain.ErrIndexCorrupt, info.Version, CurrentSchemaVersion)
	}
	if info.EmbeddingModel != model || info.Dimension != dimension {
		return fmt.Errorf("%w: index uses %s (%d dims), embedder is %s (%d dims)",
			domain.ErrIndexIncompatible, info.EmbeddingModel, info.Dimension, model, dimension)
	}
	return nil
}
