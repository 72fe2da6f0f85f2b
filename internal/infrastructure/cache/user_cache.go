package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
	"github.com/oksasatya/go-user-service/pkg/helpers"
)

func userKey(id string) string {
	return "user:cache:" + id
}

type cachedUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Deleted marks a tombstone left by Delete.
	Deleted bool `json:"deleted,omitempty"`
}

func toCached(u *entity.User) cachedUser {
	return cachedUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Password:  u.Password,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// UserCache is a read-through cache of users keyed by id. Reads fill missing
// entries with SETNX while writes overwrite, and deletes leave a tombstone for
// one TTL so an in-flight read cannot bring a removed user back.
type UserCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUserCache(rdb *redis.Client, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UserCache{rdb: rdb, ttl: ttl}
}

func (c *UserCache) Get(ctx context.Context, id string) (*entity.User, bool, error) {
	var cu cachedUser
	found, err := helpers.RedisGetJSON(ctx, c.rdb, userKey(id), &cu)
	if err != nil || !found || cu.Deleted {
		return nil, false, err
	}
	return &entity.User{
		ID:        cu.ID,
		Name:      cu.Name,
		Email:     cu.Email,
		Phone:     cu.Phone,
		Password:  cu.Password,
		CreatedAt: cu.CreatedAt,
		UpdatedAt: cu.UpdatedAt,
	}, true, nil
}

// Fill caches u unless an entry (or tombstone) already exists.
func (c *UserCache) Fill(ctx context.Context, u *entity.User) error {
	_, err := helpers.RedisSetNXJSON(ctx, c.rdb, userKey(u.ID), toCached(u), c.ttl)
	return err
}

// Set overwrites the entry for u.
func (c *UserCache) Set(ctx context.Context, u *entity.User) error {
	return helpers.RedisSetJSON(ctx, c.rdb, userKey(u.ID), toCached(u), c.ttl)
}

// Delete replaces the entry with a tombstone.
func (c *UserCache) Delete(ctx context.Context, id string) error {
	return helpers.RedisSetJSON(ctx, c.rdb, userKey(id), cachedUser{ID: id, Deleted: true}, c.ttl)
}
