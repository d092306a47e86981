package domain

// User is the storefront account as seen by the chat service.
// Staff accounts may observe any conversation and receive notifications.
type User struct {
	ID          int64   `db:"id"`
	Username    string  `db:"username"`
	DisplayName *string `db:"display_name"`
	IsStaff     bool    `db:"is_staff"`
}
