package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
	"github.com/oksasatya/go-user-service/internal/domain/repository/mocks"
	"github.com/oksasatya/go-user-service/internal/infrastructure/cache"
	"github.com/oksasatya/go-user-service/internal/infrastructure/memory"
	"github.com/oksasatya/go-user-service/pkg/apperror"
	"github.com/oksasatya/go-user-service/pkg/helpers"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.UserEvent
	err    error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, body any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := body.(entity.UserEvent); ok {
		p.events = append(p.events, ev)
	}
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingIndex struct {
	indexed []string
	deleted []string
	hits    []map[string]any
	size    int
}

func (x *recordingIndex) Index(_ context.Context, u *entity.User) error {
	x.indexed = append(x.indexed, u.ID)
	return nil
}

func (x *recordingIndex) Delete(_ context.Context, id string) error {
	x.deleted = append(x.deleted, id)
	return nil
}

func (x *recordingIndex) Search(_ context.Context, _ string, size int) ([]map[string]any, error) {
	x.size = size
	return x.hits, nil
}

func newTestService() *Service {
	return NewService(memory.NewUserRepository(), helpers.NewBcryptHasher(bcrypt.MinCost), helpers.NewDiscardLogger())
}

func strPtr(s string) *string { return &s }

func TestCreateUserHashesPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Name: "Bob", Email: "bob@x.com", Password: "longpass1"})
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "longpass1", u.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("longpass1")))

	stored, err := svc.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Password, stored.Password)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, CreateUserInput{Name: "Amy", Email: "a@x.com", Password: "longpass2"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	users, err := svc.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestCreateUserRaceLostOnUniqueIndex(t *testing.T) {
	repo := new(mocks.UserRepository)
	svc := NewService(repo, helpers.NewBcryptHasher(bcrypt.MinCost), helpers.NewDiscardLogger())
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "a@x.com").Return(nil, apperror.NewNotFound("user", "a@x.com"))
	repo.On("Create", ctx, mock.AnythingOfType("*entity.User")).Return(apperror.NewConflict("user", "email", "a@x.com"))

	_, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
	repo.AssertExpectations(t)
}

func TestCreateUserStoreFailure(t *testing.T) {
	repo := new(mocks.UserRepository)
	svc := NewService(repo, helpers.NewBcryptHasher(bcrypt.MinCost), helpers.NewDiscardLogger())
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "a@x.com").Return(nil, apperror.NewPersistence("get user by email", errors.New("connection refused")))

	_, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	assert.ErrorIs(t, err, apperror.ErrPersistence)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGetAllUsersEmpty(t *testing.T) {
	svc := newTestService()

	users, err := svc.GetAllUsers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}

func TestGetAllUsersInsertionOrder(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for _, name := range []string{"Ann", "Bob", "Cid"} {
		_, err := svc.CreateUser(ctx, CreateUserInput{Name: name, Email: name + "@x.com", Password: "longpass1"})
		require.NoError(t, err)
	}

	users, err := svc.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "Ann", users[0].Name)
	assert.Equal(t, "Cid", users[2].Name)
}

func TestGetUserByIDIsIdempotent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)

	first, err := svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpdateUserPartial(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Phone: "123", Password: "longpass1"})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(ctx, created.ID, UpdateUserInput{Phone: strPtr("999")})
	require.NoError(t, err)

	assert.Equal(t, "Ann", updated.Name)
	assert.Equal(t, "a@x.com", updated.Email)
	assert.Equal(t, "999", updated.Phone)
	assert.Equal(t, created.Password, updated.Password)

	stored, err := svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "999", stored.Phone)
}

func TestUpdateUserRehashesPassword(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(ctx, created.ID, UpdateUserInput{Password: strPtr("newpass12")})
	require.NoError(t, err)

	assert.NotEqual(t, "newpass12", updated.Password)
	assert.True(t, svc.Hasher.Compare(updated.Password, "newpass12"))
	assert.False(t, svc.Hasher.Compare(updated.Password, "longpass1"))
}

func TestUpdateUserEmailCollision(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	ann, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, CreateUserInput{Name: "Bob", Email: "b@x.com", Password: "longpass1"})
	require.NoError(t, err)

	_, err = svc.UpdateUser(ctx, ann.ID, UpdateUserInput{Email: strPtr("b@x.com"), Name: strPtr("Annie")})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	stored, err := svc.GetUserByID(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", stored.Name)
	assert.Equal(t, "a@x.com", stored.Email)

	// re-submitting one's own email is not a collision
	_, err = svc.UpdateUser(ctx, ann.ID, UpdateUserInput{Email: strPtr("a@x.com")})
	assert.NoError(t, err)
}

func TestMissingIDSurfacesNotFound(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.GetUserByID(ctx, "missing-id")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.UpdateUser(ctx, "missing-id", UpdateUserInput{Name: strPtr("Zed")})
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = svc.DeleteUser(ctx, "missing-id")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	users, err := svc.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestDeleteUserReturnsPriorRecord(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)

	deleted, err := svc.DeleteUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)
	assert.Equal(t, "a@x.com", deleted.Email)

	_, err = svc.GetUserByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCacheFollowsWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	svc := newTestService()
	svc.Cache = cache.NewUserCache(rdb, time.Minute)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)

	_, err = svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists("user:cache:"+created.ID))

	_, err = svc.UpdateUser(ctx, created.ID, UpdateUserInput{Name: strPtr("Annie")})
	require.NoError(t, err)

	got, err := svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Annie", got.Name)

	_, err = svc.DeleteUser(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.GetUserByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// pausingRepo holds the first armed GetByID after it has read the store,
// until release is closed.
type pausingRepo struct {
	*memory.UserRepository
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func newPausingRepo() *pausingRepo {
	return &pausingRepo{
		UserRepository: memory.NewUserRepository(),
		reached:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (r *pausingRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u, err := r.UserRepository.GetByID(ctx, id)
	if r.armed.CompareAndSwap(true, false) {
		close(r.reached)
		<-r.release
	}
	return u, err
}

func newCachedService(t *testing.T, repo *pausingRepo) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	svc := NewService(repo, helpers.NewBcryptHasher(bcrypt.MinCost), helpers.NewDiscardLogger())
	svc.Cache = cache.NewUserCache(rdb, time.Minute)
	return svc, mr
}

func TestSlowReadDoesNotCacheStaleUser(t *testing.T) {
	repo := newPausingRepo()
	svc, mr := newCachedService(t, repo)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)
	// expired entry: the next read goes to the store
	mr.Del("user:cache:" + created.ID)

	repo.armed.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.GetUserByID(ctx, created.ID)
	}()
	<-repo.reached

	_, err = svc.UpdateUser(ctx, created.ID, UpdateUserInput{Name: strPtr("Annie")})
	require.NoError(t, err)
	close(repo.release)
	<-done

	got, err := svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Annie", got.Name)
}

func TestSlowReadDoesNotResurrectDeletedUser(t *testing.T) {
	repo := newPausingRepo()
	svc, mr := newCachedService(t, repo)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)
	// expired entry: the next read goes to the store
	mr.Del("user:cache:" + created.ID)

	repo.armed.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.GetUserByID(ctx, created.ID)
	}()
	<-repo.reached

	_, err = svc.DeleteUser(ctx, created.ID)
	require.NoError(t, err)
	close(repo.release)
	<-done

	_, err = svc.GetUserByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCacheOutageDoesNotFailReads(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	svc := newTestService()
	svc.Cache = cache.NewUserCache(rdb, time.Minute)
	ctx := context.Background()
	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)

	mr.Close()

	got, err := svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestWritesPublishEventsAndSyncIndex(t *testing.T) {
	svc := newTestService()
	pub := &recordingPublisher{}
	idx := &recordingIndex{}
	svc.Events = pub
	svc.Index = idx
	ctx := context.Background()

	u, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)
	_, err = svc.UpdateUser(ctx, u.ID, UpdateUserInput{Phone: strPtr("1")})
	require.NoError(t, err)
	_, err = svc.DeleteUser(ctx, u.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{entity.UserCreated, entity.UserUpdated, entity.UserDeleted}, pub.types())
	assert.Equal(t, []string{u.ID, u.ID}, idx.indexed)
	assert.Equal(t, []string{u.ID}, idx.deleted)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	svc := newTestService()
	svc.Events = &recordingPublisher{err: errors.New("channel closed")}

	u, err := svc.CreateUser(context.Background(), CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
}

func TestSearchUsers(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	hits, err := svc.SearchUsers(ctx, "ann", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	idx := &recordingIndex{hits: []map[string]any{{"name": "Ann"}}}
	svc.Index = idx

	hits, err = svc.SearchUsers(ctx, "ann", 500)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.Equal(t, defaultSearchSize, idx.size)
}

func TestGetUserByEmail(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.GetUserByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)

	got, err := svc.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestOverlongPasswordIsInvalidInput(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	long := strings.Repeat("a", 80)

	_, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: long})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	assert.Equal(t, map[string]string{"password": "max length 72 bytes"}, apperror.FieldsOf(err))

	created, err := svc.CreateUser(ctx, CreateUserInput{Name: "Ann", Email: "a@x.com", Password: "longpass1"})
	require.NoError(t, err)

	_, err = svc.UpdateUser(ctx, created.ID, UpdateUserInput{Password: &long})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)

	stored, err := svc.GetUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Password, stored.Password)
}
