package vector

import (
	"context"
	"fmt"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search, snapshotted to a local file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeMilvus uses a Milvus collection with an HNSW index.
	IndexTypeMilvus IndexType = "milvus"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "memory" (default), "milvus". For milvus, cfg.Dimensions overrides dimensions when set.
func NewVectorIndex(ctx context.Context, indexType string, dimensions int, cfg MilvusConfig) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeMilvus:
		if cfg.Dimensions == 0 {
			cfg.Dimensions = dimensions
		}
		return NewMilvusIndex(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, milvus)", indexType)
	}
}
