package models

import "fmt"

// SearchQuery is a similarity search request. Exactly one of Text or Image is set.
type SearchQuery struct {
	Text      string    `json:"query,omitempty"`
	Image     []byte    `json:"-"`
	TopK      int       `json:"top_k,omitempty"`
	AssetType AssetType `json:"asset_type,omitempty"`
}

// Validate ensures the query has exactly one input and clamps TopK into [1, maxTopK],
// substituting defaultTopK when unset.
func (q *SearchQuery) Validate(defaultTopK, maxTopK int) error {
	if q.Text == "" && len(q.Image) == 0 {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Text != "" && len(q.Image) > 0 {
		return fmt.Errorf("query must be either text or image, not both")
	}
	if _, err := ParseAssetType(string(q.AssetType)); err != nil {
		return err
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}
