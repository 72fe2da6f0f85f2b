// Package memory provides a map-backed user store with the same contract as
// the Postgres repository. It backs STORE_DRIVER=memory and the test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
	"github.com/oksasatya/go-user-service/internal/domain/repository"
	"github.com/oksasatya/go-user-service/pkg/apperror"
)

type UserRepository struct {
	mu      sync.RWMutex
	users   map[string]*entity.User
	byEmail map[string]string
	order   []string
}

// NewUserRepository builds an empty in-memory user store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[string]*entity.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepository) List(_ context.Context) ([]*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id].Clone())
	}
	return out, nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NewNotFound("user", id)
	}
	return u.Clone(), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, apperror.NewNotFound("user", email)
	}
	return r.users[id].Clone(), nil
}

func (r *UserRepository) Create(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[u.Email]; exists {
		return apperror.NewConflict("user", "email", u.Email)
	}
	if _, exists := r.users[u.ID]; exists {
		return apperror.NewConflict("user", "id", u.ID)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	r.users[u.ID] = u.Clone()
	r.byEmail[u.Email] = u.ID
	r.order = append(r.order, u.ID)
	return nil
}

func (r *UserRepository) Update(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[u.ID]
	if !ok {
		return apperror.NewNotFound("user", u.ID)
	}
	if owner, taken := r.byEmail[u.Email]; taken && owner != u.ID {
		return apperror.NewConflict("user", "email", u.Email)
	}

	delete(r.byEmail, current.Email)
	u.CreatedAt = current.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	r.users[u.ID] = u.Clone()
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepository) Delete(_ context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperror.NewNotFound("user", id)
	}
	delete(r.users, id)
	delete(r.byEmail, u.Email)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return u, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
