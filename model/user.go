package model

import "time"

// User is owned by the excluded auth collaborator; this subsystem only reads
// it to resolve webhook customer emails back to a wallet owner.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
