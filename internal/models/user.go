package models

import "time"

// User represents an account on the blog.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	Mobile         string    `json:"mobile"`
	PasswordHash   string    `json:"-"` // Never expose this to the client
	ProfilePicture string    `json:"-"` // Blob name under the media root, empty when unset
	CreatedAt      time.Time `json:"created_at"`
}

// AuthorSummary is the only view of a User embedded in post payloads.
type AuthorSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Summary returns the public id/username projection of the user.
func (u User) Summary() AuthorSummary {
	return AuthorSummary{ID: u.ID, Username: u.Username}
}
