package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/assethub/internal/models"
)

// BleveIndex implements NameIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so "cat" does not match "category".
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("mime_type", keywordFieldMapping)
	im.AddDocumentMapping("asset", docMapping)
	im.DefaultType = "asset"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path or ":memory:"
// creates an in-memory index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := newMapping()

	if path == "" || path == ":memory:" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index stores the asset's name and description under its id.
func (b *BleveIndex) Index(ctx context.Context, asset *models.MediaAsset) error {
	return b.index.Index(asset.ID, document{
		Name:        asset.Name,
		Description: asset.Description,
		Type:        string(asset.Type),
		MimeType:    asset.MimeType,
	})
}

// Search matches query against names and descriptions. Name matches are boosted by
// opts.NameBoost. When nothing matches exactly and opts.Fuzziness > 0, the query is
// retried with per-term fuzzy matching.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	nameBoost := 1.0
	fuzziness := 0
	var typ models.AssetType
	if opts != nil {
		if opts.NameBoost > 0 {
			nameBoost = opts.NameBoost
		}
		fuzziness = opts.Fuzziness
		typ = opts.Type
	}
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	results, err := b.run(b.matchQuery(query, nameBoost), typ, limit)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && fuzziness > 0 {
		return b.run(b.fuzzyQuery(query, nameBoost, fuzziness), typ, limit)
	}
	return results, nil
}

func (b *BleveIndex) matchQuery(query string, nameBoost float64) blevequery.Query {
	nq := bleve.NewMatchQuery(query)
	nq.SetField("name")
	nq.SetBoost(nameBoost)
	dq := bleve.NewMatchQuery(query)
	dq.SetField("description")
	return bleve.NewDisjunctionQuery(nq, dq)
}

// fuzzyQuery builds a disjunction of fuzzy term queries over both text fields.
func (b *BleveIndex) fuzzyQuery(query string, nameBoost float64, fuzziness int) blevequery.Query {
	var queries []blevequery.Query
	for _, term := range strings.Fields(strings.ToLower(query)) {
		nq := bleve.NewFuzzyQuery(term)
		nq.SetFuzziness(fuzziness)
		nq.SetField("name")
		nq.SetBoost(nameBoost)
		dq := bleve.NewFuzzyQuery(term)
		dq.SetFuzziness(fuzziness)
		dq.SetField("description")
		queries = append(queries, nq, dq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func (b *BleveIndex) run(q blevequery.Query, typ models.AssetType, limit int) ([]*Result, error) {
	if typ != "" {
		tq := bleve.NewTermQuery(string(typ))
		tq.SetField("type")
		q = bleve.NewConjunctionQuery(q, tq)
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Delete removes an asset from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// DocCount returns the total number of assets in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
