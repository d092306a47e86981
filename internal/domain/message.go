package domain

import "time"

// Sender identifies which side of a conversation authored a message.
// Wire values match the legacy storefront ("user" = customer, "admin" = staff).
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAdmin
}

// Message is one line of the direct chat between a customer and staff.
// UserID is always the customer side, regardless of who sent it.
type Message struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Sender    Sender    `db:"sender"`
	Text      *string   `db:"text"`
	ImageURL  *string   `db:"image_url"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

// ConversationSummary is the staff dashboard row for one conversation.
type ConversationSummary struct {
	UserID      int64
	LastMessage *string
	UnreadCount int64
	TotalCount  int64
	LastAt      time.Time
}
