// Package auth defines roles, principals and user accounts.
package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// Role is the access level of a user.
type Role string

// Known roles.
const (
	RoleAdmin      Role = "Admin"
	RoleSupervisor Role = "Supervisor"
	RoleCashier    Role = "Cashier"
)

// ParseRole accepts the exact role names only.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleSupervisor, RoleCashier:
		return r, true
	default:
		return "", false
	}
}

// CanSell reports whether the role may create and list sales.
func (r Role) CanSell() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleCashier:
		return true
	default:
		return false
	}
}

// CanManageCatalog reports whether the role may change products.
func (r Role) CanManageCatalog() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// CanViewReports reports whether the role may read reports.
func (r Role) CanViewReports() bool {
	return r == RoleAdmin || r == RoleSupervisor
}

// Principal is the identity a request acts on behalf of.
type Principal struct {
	Role  Role
	Email string
}

// User is a stored account.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
}

// Errors returned by the user service and repositories.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("User already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError is a client input problem with a user request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Repository persists user accounts. Emails are unique.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	// Toggle flips the active flag and returns the updated user.
	Toggle(ctx context.Context, email string) (*User, error)
}

func normalizeEmail(s string) string {
	return strings.TrimSpace(s)
}
