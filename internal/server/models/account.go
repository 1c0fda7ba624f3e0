// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is a registered user. Account holds the numeric login string,
// ID the surrogate key used everywhere else.
type Account struct {
	ID           int64
	Account      string
	PasswordHash []byte
	Salt         []byte
	IsAdmin      bool
	CreatedAt    time.Time
}
