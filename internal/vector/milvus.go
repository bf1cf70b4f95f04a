package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/models"
)

const (
	fieldID         = "id"
	fieldAssetID    = "asset_id"
	fieldAssetType  = "asset_type"
	fieldFrameIndex = "frame_index"
	fieldEmbedding  = "embedding"
)

// MilvusConfig holds connection and index settings for Milvus.
type MilvusConfig struct {
	Address        string
	Username       string
	Password       string
	Collection     string
	Dimensions     int
	M              int
	EfConstruction int
	SearchEf       int
}

// MilvusIndex stores vectors in a Milvus collection with an HNSW inner-product index.
type MilvusIndex struct {
	mc   client.Client
	cfg  MilvusConfig
	coll string
}

// NewMilvusIndex connects to Milvus, creating and loading the collection if needed.
func NewMilvusIndex(ctx context.Context, cfg MilvusConfig) (*MilvusIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if cfg.Collection == "" {
		cfg.Collection = "asset_vectors"
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 256
	}
	if cfg.SearchEf <= 0 {
		cfg.SearchEf = 64
	}
	mc, err := client.NewClient(ctx, client.Config{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", apperrors.Transient(err))
	}
	idx := &MilvusIndex{mc: mc, cfg: cfg, coll: cfg.Collection}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = mc.Close()
		return nil, err
	}
	return idx, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	has, err := m.mc.HasCollection(ctx, m.coll)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().
			WithName(m.coll).
			WithDescription("asset and keyframe embeddings").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldAssetID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldAssetType).WithDataType(entity.FieldTypeVarChar).WithMaxLength(16)).
			WithField(entity.NewField().WithName(fieldFrameIndex).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(m.cfg.Dimensions)))
		if err := m.mc.CreateCollection(ctx, schema, 2); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.IP, m.cfg.M, m.cfg.EfConstruction)
		if err != nil {
			return fmt.Errorf("failed to build hnsw index params: %w", err)
		}
		if err := m.mc.CreateIndex(ctx, m.coll, fieldEmbedding, idx, false, client.WithIndexName("idx_embedding")); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := m.mc.LoadCollection(ctx, m.coll, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// Insert upserts records.
func (m *MilvusIndex) Insert(ctx context.Context, records []*models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	assetIDs := make([]string, len(records))
	types := make([]string, len(records))
	frames := make([]int64, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		if len(r.Embedding) != m.cfg.Dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Embedding), m.cfg.Dimensions)
		}
		ids[i] = r.ID
		assetIDs[i] = r.AssetID
		types[i] = string(r.AssetType)
		frames[i] = int64(r.FrameIndex)
		vectors[i] = r.Embedding
	}
	_, err := m.mc.Upsert(ctx, m.coll, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldAssetID, assetIDs),
		entity.NewColumnVarChar(fieldAssetType, types),
		entity.NewColumnInt64(fieldFrameIndex, frames),
		entity.NewColumnFloatVector(fieldEmbedding, m.cfg.Dimensions, vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", apperrors.Transient(err))
	}
	return nil
}

// Search runs an HNSW inner-product search, optionally restricted to one asset type.
func (m *MilvusIndex) Search(ctx context.Context, query []float32, topK int, typeFilter models.AssetType) ([]*Hit, error) {
	if len(query) != m.cfg.Dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.cfg.Dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}
	sp, err := entity.NewIndexHNSWSearchParam(max(m.cfg.SearchEf, topK))
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}
	expr := ""
	if typeFilter != "" {
		expr = fmt.Sprintf("%s == %s", fieldAssetType, quote(string(typeFilter)))
	}
	results, err := m.mc.Search(ctx, m.coll, nil, expr,
		[]string{fieldAssetID, fieldAssetType, fieldFrameIndex},
		[]entity.Vector{entity.FloatVector(query)},
		fieldEmbedding, entity.IP, topK, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", apperrors.Transient(err))
	}

	var hits []*Hit
	for _, r := range results {
		ids, _ := r.IDs.(*entity.ColumnVarChar)
		cols := map[string]entity.Column{}
		for _, c := range r.Fields {
			cols[c.Name()] = c
		}
		assetIDs, _ := cols[fieldAssetID].(*entity.ColumnVarChar)
		types, _ := cols[fieldAssetType].(*entity.ColumnVarChar)
		frames, _ := cols[fieldFrameIndex].(*entity.ColumnInt64)
		if ids == nil || assetIDs == nil || types == nil || frames == nil {
			return nil, fmt.Errorf("unexpected milvus result columns")
		}
		for i := 0; i < r.ResultCount; i++ {
			hits = append(hits, &Hit{
				ID:         ids.Data()[i],
				AssetID:    assetIDs.Data()[i],
				AssetType:  models.AssetType(types.Data()[i]),
				FrameIndex: int(frames.Data()[i]),
				Score:      float64(r.Scores[i]),
			})
		}
	}
	return hits, nil
}

// Delete removes records by primary key.
func (m *MilvusIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quote(id)
	}
	expr := fmt.Sprintf("%s in [%s]", fieldID, strings.Join(quoted, ","))
	if err := m.mc.Delete(ctx, m.coll, "", expr); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", apperrors.Transient(err))
	}
	return nil
}

// DeleteByAsset removes every record of an asset.
func (m *MilvusIndex) DeleteByAsset(ctx context.Context, assetID string) error {
	expr := fmt.Sprintf("%s == %s", fieldAssetID, quote(assetID))
	if err := m.mc.Delete(ctx, m.coll, "", expr); err != nil {
		return fmt.Errorf("failed to delete asset vectors: %w", apperrors.Transient(err))
	}
	return nil
}

// Size returns the collection row count as reported by Milvus statistics.
func (m *MilvusIndex) Size(ctx context.Context) (int, error) {
	stats, err := m.mc.GetCollectionStatistics(ctx, m.coll)
	if err != nil {
		return 0, fmt.Errorf("failed to read collection stats: %w", err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("bad row_count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

// Close releases the client connection.
func (m *MilvusIndex) Close() error {
	return m.mc.Close()
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
