package search

// Result is a single canvas search hit returned to the caller.
type Result struct {
	ID      string `json:"canvasId"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a canvas search scoped to one owner.
type Query struct {
	Text   string
	UID    string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// CanvasRecord is the data we index for a canvas.
type CanvasRecord struct {
	ID        string `json:"id"`
	UID       string `json:"uid"`
	Title     string `json:"title"`
	UpdatedAt int64  `json:"updatedAt"`
}

// FileRecord is the data we index for a stored file.
type FileRecord struct {
	ID           string `json:"id"`
	UID          string `json:"uid"`
	EntityID     string `json:"entityId"`
	EntityType   string `json:"entityType"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
	StorageSize  int64  `json:"storageSize"`
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
