package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterRequest is a self-service signup.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// CreateUserRequest is an account created by an administrator.
type CreateUserRequest struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Service manages user accounts. Every path stores bcrypt hashes.
type Service struct {
	users Repository
	cost  int
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a user Service.
func NewService(users Repository, opts ...Option) *Service {
	s := &Service{users: users, cost: bcrypt.DefaultCost}
	for _, o := range opts {
		o(s)
	}
	return s
}

// HashPassword hashes a plaintext password with the given bcrypt cost.
func HashPassword(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(h), nil
}

// Register creates an Admin or Cashier account. The role is matched
// case-insensitively and defaults to Cashier.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.Password) == "" {
		return nil, &ValidationError{Reason: "Email and Password required"}
	}

	role := RoleCashier
	switch r := strings.TrimSpace(req.Role); {
	case r == "":
	case strings.EqualFold(r, string(RoleAdmin)):
		role = RoleAdmin
	case strings.EqualFold(r, string(RoleCashier)):
		role = RoleCashier
	default:
		return nil, &ValidationError{Reason: "Role must be Admin or Cashier"}
	}

	return s.create(ctx, strings.TrimSpace(req.Name), email, req.Password, role)
}

// CreateUser creates an account with any known role.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	password := strings.TrimSpace(req.Password)

	switch {
	case name == "":
		return nil, &ValidationError{Reason: "Name required"}
	case email == "":
		return nil, &ValidationError{Reason: "Email required"}
	case password == "":
		return nil, &ValidationError{Reason: "Password required"}
	}

	role, ok := ParseRole(strings.TrimSpace(req.Role))
	if !ok {
		return nil, &ValidationError{Reason: "Role must be Admin, Supervisor or Cashier"}
	}

	return s.create(ctx, name, email, password, role)
}

func (s *Service) create(ctx context.Context, name, email, password string, role Role) (*User, error) {
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, errors.Wrap(err, "create user")
	}
	return u, nil
}

// Login verifies credentials of an active user.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "get user")
	}
	if !u.Active {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// ListUsers returns all accounts ordered by name.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

// ToggleUser flips the active flag of the account with the given email.
func (s *Service) ToggleUser(ctx context.Context, email string) (*User, error) {
	u, err := s.users.Toggle(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "toggle user")
	}
	return u, nil
}

// EnsureUser creates the account unless the email is already taken. It
// reports whether a new account was created.
func (s *Service) EnsureUser(ctx context.Context, req CreateUserRequest) (*User, bool, error) {
	u, err := s.CreateUser(ctx, req)
	switch {
	case err == nil:
		return u, true, nil
	case errors.Is(err, ErrUserExists):
		existing, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
		if err != nil {
			return nil, false, errors.Wrap(err, "get user")
		}
		return existing, false, nil
	default:
		return nil, false, err
	}
}
