package models

import "time"

// User captures application-facing fields for an authenticated identity.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile is the public subset of a User returned by /me.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ProfileUpdate carries the optional fields of a profile change.
type ProfileUpdate struct {
	Username *string
	Email    *string
}
