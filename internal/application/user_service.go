package application

import (
	"context"
	"errors"
	"expvar"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
	repo "github.com/oksasatya/go-user-service/internal/domain/repository"
	"github.com/oksasatya/go-user-service/pkg/apperror"
	"github.com/oksasatya/go-user-service/pkg/helpers"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
)

var (
	usersCreated = expvar.NewInt("users_created")
	usersUpdated = expvar.NewInt("users_updated")
	usersDeleted = expvar.NewInt("users_deleted")
)

// PasswordHasher hashes secrets at a fixed work factor.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
}

// UserCache is an optional read-through cache in front of the repository.
// Fill only populates a missing entry, so a read racing a write never replaces
// what Set or Delete stored after it.
type UserCache interface {
	Get(ctx context.Context, id string) (*entity.User, bool, error)
	Fill(ctx context.Context, u *entity.User) error
	Set(ctx context.Context, u *entity.User) error
	Delete(ctx context.Context, id string) error
}

// UserIndex is an optional search projection of users.
type UserIndex interface {
	Index(ctx context.Context, u *entity.User) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q string, size int) ([]map[string]any, error)
}

// EventPublisher delivers user lifecycle events.
type EventPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// Service holds the user business rules. Cache, Index and Events are optional;
// failures there are logged and never fail the request.
type Service struct {
	Repo   repo.UserRepository
	Hasher PasswordHasher
	Cache  UserCache
	Index  UserIndex
	Events EventPublisher
	Logger *logrus.Logger
}

func NewService(repo repo.UserRepository, hasher PasswordHasher, logger *logrus.Logger) *Service {
	return &Service{Repo: repo, Hasher: hasher, Logger: logger}
}

type CreateUserInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// UpdateUserInput carries a partial update; nil fields are left unchanged.
type UpdateUserInput struct {
	Name     *string
	Email    *string
	Phone    *string
	Password *string
}

func (s *Service) GetAllUsers(ctx context.Context) ([]*entity.User, error) {
	users, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*entity.User{}
	}
	return users, nil
}

// GetUserByID returns an error matching apperror.ErrNotFound when absent.
func (s *Service) GetUserByID(ctx context.Context, id string) (*entity.User, error) {
	if s.Cache != nil {
		u, found, err := s.Cache.Get(ctx, id)
		if err != nil {
			helpers.LogWarn(s.Logger, "user cache read failed", err, logrus.Fields{"user_id": id})
		} else if found {
			return u, nil
		}
	}

	u, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Fill(ctx, u); err != nil {
			helpers.LogWarn(s.Logger, "user cache write failed", err, logrus.Fields{"user_id": id})
		}
	}
	return u, nil
}

// GetUserByEmail returns an error matching apperror.ErrNotFound when absent.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*entity.User, error) {
	return s.Repo.GetByEmail(ctx, email)
}

// emailOwner returns the user holding email, or nil when it is free.
func (s *Service) emailOwner(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*entity.User, error) {
	owner, err := s.emailOwner(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if owner != nil {
		return nil, apperror.NewConflict("user", "email", in.Email)
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &entity.User{
		ID:       uuid.NewString(),
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Password: hash,
	}
	// a concurrent create with the same email loses here on the unique index
	if err := s.Repo.Create(ctx, u); err != nil {
		return nil, err
	}

	usersCreated.Add(1)
	s.afterWrite(ctx, entity.UserCreated, u)
	return u, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*entity.User, error) {
	current, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Email != nil && *in.Email != current.Email {
		owner, err := s.emailOwner(ctx, *in.Email)
		if err != nil {
			return nil, err
		}
		if owner != nil && owner.ID != current.ID {
			return nil, apperror.NewConflict("user", "email", *in.Email)
		}
	}

	u := current.Clone()
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	if in.Password != nil {
		hash, err := s.hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		u.Password = hash
	}

	if err := s.Repo.Update(ctx, u); err != nil {
		return nil, err
	}

	usersUpdated.Add(1)
	s.afterWrite(ctx, entity.UserUpdated, u)
	return u, nil
}

// DeleteUser returns the user as it was before deletion.
func (s *Service) DeleteUser(ctx context.Context, id string) (*entity.User, error) {
	if _, err := s.Repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	u, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	usersDeleted.Add(1)
	s.afterWrite(ctx, entity.UserDeleted, u)
	return u, nil
}

func (s *Service) hashPassword(plain string) (string, error) {
	hash, err := s.Hasher.Hash(plain)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apperror.NewValidation(map[string]string{"password": "max length 72 bytes"})
	}
	if err != nil {
		return "", apperror.NewInternal("hash password", err)
	}
	return hash, nil
}

// SearchUsers returns an empty result when no search index is configured.
func (s *Service) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if s.Index == nil {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > maxSearchSize {
		size = defaultSearchSize
	}
	hits, err := s.Index.Search(ctx, q, size)
	if err != nil {
		return nil, apperror.NewPersistence("search users", err)
	}
	return hits, nil
}

func (s *Service) afterWrite(ctx context.Context, eventType string, u *entity.User) {
	fields := logrus.Fields{"user_id": u.ID, "event": eventType}

	if s.Cache != nil {
		var err error
		if eventType == entity.UserDeleted {
			err = s.Cache.Delete(ctx, u.ID)
		} else {
			err = s.Cache.Set(ctx, u)
		}
		if err != nil {
			helpers.LogWarn(s.Logger, "user cache update failed", err, fields)
		}
	}

	if s.Index != nil {
		var err error
		if eventType == entity.UserDeleted {
			err = s.Index.Delete(ctx, u.ID)
		} else {
			err = s.Index.Index(ctx, u)
		}
		if err != nil {
			helpers.LogWarn(s.Logger, "user search index sync failed", err, fields)
		}
	}

	if s.Events != nil {
		if err := s.Events.PublishJSON(ctx, entity.NewUserEvent(eventType, u)); err != nil {
			helpers.LogWarn(s.Logger, "publish user event failed", err, fields)
		}
	}

	if s.Logger != nil {
		s.Logger.WithFields(fields).Debug("user write applied")
	}
}
