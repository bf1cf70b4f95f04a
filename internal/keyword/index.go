// Package keyword indexes asset names and descriptions for lexical lookup.
package keyword

import (
	"context"

	"github.com/hyperjump/assethub/internal/models"
)

// SearchOptions optional parameters for name search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score contribution from matches in the name field.
	// Use 1.0 for no boost.
	NameBoost float64
	// Type restricts results to one asset type when set.
	Type models.AssetType
	// Fuzziness is the maximum edit distance used when an exact match finds nothing.
	// Zero disables the fuzzy retry.
	Fuzziness int
}

// NameIndex defines asset name search operations.
type NameIndex interface {
	Index(ctx context.Context, asset *models.MediaAsset) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of assets in the index.
	DocCount() (uint64, error)
	Close() error
}

// Result is a single name search hit.
type Result struct {
	ID    string
	Score float64
}

// document is what gets stored in the index for an asset.
type document struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	MimeType    string `json:"mime_type"`
}
