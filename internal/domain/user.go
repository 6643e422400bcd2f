package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleVendor   Role = "VENDOR"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleVendor || r == RoleAdmin
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "ROLE_"))
	if !r.Valid() {
		return "", ErrInvalidInput
	}
	return r, nil
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Role         Role      `json:"role"`
	Deleted      bool      `json:"deleted"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Blocked users keep their history but may not mutate anything.
func (u *User) Blocked() bool {
	return u.Deleted
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID  int64
	Role    Role
	Blocked bool
}

func (a Actor) Is(role Role) bool {
	return a.Role == role
}

func ActorOf(u *User) Actor {
	return Actor{UserID: u.ID, Role: u.Role, Blocked: u.Deleted}
}
