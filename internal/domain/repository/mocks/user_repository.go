package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
	"github.com/oksasatya/go-user-service/internal/domain/repository"
)

var _ repository.UserRepository = (*UserRepository)(nil)

type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) List(ctx context.Context) ([]*entity.User, error) {
	ret := m.Called(ctx)

	users, _ := ret.Get(0).([]*entity.User)
	return users, ret.Error(1)
}

func (m *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	ret := m.Called(ctx, id)

	u, _ := ret.Get(0).(*entity.User)
	return u, ret.Error(1)
}

func (m *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	ret := m.Called(ctx, email)

	u, _ := ret.Get(0).(*entity.User)
	return u, ret.Error(1)
}

func (m *UserRepository) Create(ctx context.Context, u *entity.User) error {
	ret := m.Called(ctx, u)

	return ret.Error(0)
}

func (m *UserRepository) Update(ctx context.Context, u *entity.User) error {
	ret := m.Called(ctx, u)

	return ret.Error(0)
}

func (m *UserRepository) Delete(ctx context.Context, id string) (*entity.User, error) {
	ret := m.Called(ctx, id)

	u, _ := ret.Get(0).(*entity.User)
	return u, ret.Error(1)
}
