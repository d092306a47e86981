package http

import "time"

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageItem struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Sender    string    `json:"sender"`
	Message   *string   `json:"message"`
	ImageURL  *string   `json:"image_url"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	Timestamp string    `json:"timestamp"` // legacy display format HH:MM DD/MM/YYYY
}

type MessagesResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type SummaryItem struct {
	UserID      string    `json:"user_id"`
	LastMessage *string   `json:"last_message"`
	UnreadCount int64     `json:"unread_count"`
	TotalCount  int64     `json:"total_count"`
	LastAt      time.Time `json:"last_at"`
	LastTime    string    `json:"last_time"` // legacy display format
}

type SummariesResponse struct {
	Items []SummaryItem `json:"items"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}
