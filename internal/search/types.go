package search

// ItemRecord is the indexed form of a pool item.
type ItemRecord struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
}

// Query is one item search request.
type Query struct {
	Text     string
	Category string
	Limit    int
	Offset   int
}

// Result is one item hit.
type Result struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
	Snippet    string   `json:"snippet,omitempty"`
}

// Response is the payload a search returns.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}
