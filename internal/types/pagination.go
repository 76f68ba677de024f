package types

// PageInfo contains pagination metadata for list responses. Cursors are
// RFC3339Nano creation timestamps; HasMore is derived with the limit+1
// fetch strategy.
type PageInfo struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// NoticeFilter defines criteria for listing a user's notices.
type NoticeFilter struct {
	UserID     string
	UnreadOnly bool
	Cursor     string
	Limit      int
}

// ResponseMeta contains non-blocking metadata returned with API responses.
type ResponseMeta struct {
	UnreadCount *int      `json:"unread_count,omitempty"`
	Pagination  *PageInfo `json:"pagination,omitempty"`
}
