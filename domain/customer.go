package domain

import (
	"strings"
	"time"
)

// Customer is identified by email; repeated proposals for the same email
// update the existing row instead of creating a new one.
type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasIdentity reports whether the minimal create precondition holds.
func (c *Customer) HasIdentity() bool {
	return c != nil && strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Email) != ""
}

// NormalizeEmail lowercases and trims an email so it can be used as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
