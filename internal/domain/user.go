package domain

import "time"

// User is a stable internal identity mapped 1:1 from an external chat identity.
// Users are created lazily on first interaction and never deleted.
type User struct {
	ID         int64     `json:"id"`
	ExternalID int64     `json:"external_id"`
	Username   *string   `json:"username,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
