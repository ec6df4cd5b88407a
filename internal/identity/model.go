package identity

import "time"

const (
	// RoleUser is a regular player.
	RoleUser = "user"
	// RoleAdmin may decide top-up/withdrawal requests and loans.
	RoleAdmin = "admin"
)

// User represents a registered platform member and wallet owner.
type User struct {
	ID           string
	Handle       string
	PasswordHash []byte
	Role         string
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Handle   string
	Password string
}
