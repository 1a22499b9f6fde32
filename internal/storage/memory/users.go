package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xenking/odin-pos/internal/domain/auth"
)

var _ auth.Repository = (*UserStore)(nil)

// UserStore is an in-memory auth.Repository keyed by email.
type UserStore struct {
	mu      sync.RWMutex
	byEmail map[string]auth.User
}

func NewUserStore() *UserStore {
	return &UserStore{byEmail: make(map[string]auth.User)}
}

func (s *UserStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return auth.ErrUserExists
	}
	s.byEmail[u.Email] = *u
	return nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return &u, nil
}

func (s *UserStore) List(_ context.Context) ([]auth.User, error) {
	s.mu.RLock()
	out := make([]auth.User, 0, len(s.byEmail))
	for _, u := range s.byEmail {
		out = append(out, u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Email < out[j].Email
	})
	return out, nil
}

func (s *UserStore) Toggle(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	u.Active = !u.Active
	s.byEmail[email] = u
	return &u, nil
}
