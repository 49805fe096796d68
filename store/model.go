package store

import "time"

// UserProfile mirrors the profiles table kept alongside the auth provider's
// users: role and firm scope every ownership check, timezone drives the
// deadline calculator.
type UserProfile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"` // attorney or client
	FirmID   string `json:"firm_id"`
	Timezone string `json:"timezone"` // IANA name, e.g. America/Chicago
}

type Firm struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleAttorney = "attorney"
	RoleClient   = "client"
)
