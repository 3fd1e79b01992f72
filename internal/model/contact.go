package model

import (
	"time"
)

// Role classifies internal users. Admin-authored messages never count toward
// agent response-time metrics.
type Role string

const (
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// User is an internal platform user (agent or admin). The bot is a reserved
// user id configured at startup, not a distinct type.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ContactLog is the external client's identity record, keyed by phone number.
type ContactLog struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name,omitempty"`
	Verified  bool      `json:"verified"`
	CompanyID *int64    `json:"company_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
