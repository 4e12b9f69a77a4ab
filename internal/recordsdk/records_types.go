package recordsdk

import "time"

// Record is the wire representation of one item in a collection.
type Record struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collection_id"`
	Fields       map[string]any `json:"fields"`
	LastModified time.Time      `json:"last_modified"`
	Archived     bool           `json:"archived"`
}

// ListRecordsParams are the query parameters for a paginated list call.
type ListRecordsParams struct {
	CollectionID  string
	ModifiedSince *time.Time
	Cursor        string
	Limit         int
}

// ListRecordsResponse is one page of a cursor-paginated listing.
type ListRecordsResponse struct {
	Records    []*Record `json:"records"`
	NextCursor string    `json:"next_cursor"`
	HasMore    bool      `json:"has_more"`
}

// CreateRecordRequest creates a new record in a collection.
type CreateRecordRequest struct {
	CollectionID string         `json:"collection_id"`
	Fields       map[string]any `json:"fields"`
}

// UpdateRecordRequest patches an existing record. Fields is a partial field
// set; Archived soft-deletes the record when set.
type UpdateRecordRequest struct {
	RecordID     string         `json:"-"`
	CollectionID string         `json:"collection_id"`
	Fields       map[string]any `json:"fields,omitempty"`
	Archived     *bool          `json:"archived,omitempty"`
}
