package models

// SearchResult is one asset returned by a similarity search.
// FrameIndex is the matching keyframe for videos and 0 otherwise.
type SearchResult struct {
	AssetID      string    `json:"asset_id"`
	Name         string    `json:"name"`
	Type         AssetType `json:"type"`
	Score        float64   `json:"score"`
	FrameIndex   int       `json:"frame_index"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query,omitempty"`
}
