package domain

// User roles. The first registered account becomes admin automatically.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           int64  `json:"id" db:"id"`
	Customer     string `json:"customer" db:"kundennummer"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`
	Role         string `json:"role" db:"role"`
}
