package domain

import "time"

// User represents an account that owns devices and can link Google Home.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	GoogleLinked bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
