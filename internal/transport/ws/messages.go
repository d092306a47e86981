package ws

import "strconv"

// Frame type tags, matched by the storefront frontend.
const (
	TypeNewMessage        = "new_message"        // full message, conversation room
	TypeAdminNotification = "admin_notification" // summary, staff room
	TypeError             = "error"              // per-connection error reply
)

// Error codes carried by TypeError frames.
const (
	CodeProtocolError      = "protocol_error"
	CodeEmptyMessage       = "empty_message"
	CodeMessageTooLong     = "message_too_long"
	CodeUserNotFound       = "user_not_found"
	CodeStorageUnavailable = "storage_unavailable"
)

// RoomStaffNotifications is the global fan-out room for staff dashboards.
const RoomStaffNotifications = "staff-notifications"

// ConversationRoom is the per-customer room key.
func ConversationRoom(userID int64) string {
	return "conversation:" + strconv.FormatInt(userID, 10)
}

// InboundFrame is what a client sends. At least one of Message/ImageURL
// must be present.
type InboundFrame struct {
	Message  string `json:"message"`
	Sender   string `json:"sender"` // "user" | "admin"
	ImageURL string `json:"image_url"`
}

// MessageFrame is the full message broadcast to the conversation room.
type MessageFrame struct {
	Type      string  `json:"type"`
	ID        int64   `json:"id"`
	UserID    string  `json:"user_id"`
	Sender    string  `json:"sender"`
	Message   string  `json:"message"`
	Snippet   string  `json:"snippet"`
	ImageURL  *string `json:"image_url"`
	Timestamp string  `json:"timestamp"`
}

// NotificationFrame is the summary broadcast to the staff room.
type NotificationFrame struct {
	Type      string  `json:"type"`
	UserID    string  `json:"user_id"`
	Sender    string  `json:"sender"`
	Snippet   string  `json:"snippet"`
	Timestamp string  `json:"timestamp"`
	ImageURL  *string `json:"image_url"`
}

// ErrorFrame is sent to the offending connection only; the connection
// stays open.
type ErrorFrame struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}
