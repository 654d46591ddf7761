package model

import "time"

// User mirrors the `users` table. Account management is out of scope for
// the engine; this record exists so that bids can be tied to an
// authenticated session subject.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
