package models

// PageResult is one page of catalog results plus pagination metadata
type PageResult struct {
	Results    []Movie `json:"results"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
}

// HasMore reports whether further pages exist
func (p PageResult) HasMore() bool {
	return p.Page < p.TotalPages
}

// FeedState is a point-in-time view of the main listing
type FeedState struct {
	Items      []Movie `json:"items"`
	PageNumber int     `json:"page_number"`
	HasMore    bool    `json:"has_more"`
	Query      string  `json:"query"` // empty means browse-popular mode
	IsLoading  bool    `json:"is_loading"`
}
