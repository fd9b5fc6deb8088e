package models

import "github.com/google/uuid"

// User is the identity row referenced by room memberships. The credential
// token itself is never stored; it carries the user id and is verified by
// the auth package.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	LeaderCardID int       `json:"leader_card_id"`
}
