package postgres

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
	"github.com/oksasatya/go-user-service/internal/domain/repository"
	"github.com/oksasatya/go-user-service/pkg/apperror"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var userColumns = []string{"id", "name", "email", "phone", "password", "created_at", "updated_at"}

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*entity.User, error) {
	var id uuid.UUID
	u := &entity.User{}
	if err := row.Scan(&id, &u.Name, &u.Email, &u.Phone, &u.Password, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ID = id.String()
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// translate maps driver errors onto apperror kinds.
func translate(err error, op, id, email string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound("user", id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return apperror.NewConflict("user", "email", email)
	}
	return apperror.NewPersistence(op, err)
}

func (r *UserRepository) List(ctx context.Context) ([]*entity.User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users").
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, apperror.NewInternal("build list users query", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.NewPersistence("list users", err)
	}
	defer rows.Close()

	users := make([]*entity.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperror.NewPersistence("scan user row", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewPersistence("iterate user rows", err)
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.NewNotFound("user", id)
	}

	query, args, err := psql.Select(userColumns...).
		From("users").
		Where(sq.Eq{"id": uid}).
		ToSql()
	if err != nil {
		return nil, apperror.NewInternal("build get user query", err)
	}

	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err, "get user by id", id, "")
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users").
		Where(sq.Eq{"email": email}).
		ToSql()
	if err != nil {
		return nil, apperror.NewInternal("build get user query", err)
	}

	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err, "get user by email", email, email)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u *entity.User) error {
	uid, err := uuid.Parse(u.ID)
	if err != nil {
		return apperror.NewInternal("user id is not a uuid", err)
	}

	query, args, err := psql.Insert("users").
		Columns("id", "name", "email", "phone", "password").
		Values(uid, u.Name, u.Email, u.Phone, u.Password).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return apperror.NewInternal("build insert user query", err)
	}

	var createdAt, updatedAt time.Time
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&createdAt, &updatedAt); err != nil {
		return translate(err, "insert user", u.ID, u.Email)
	}
	u.CreatedAt = createdAt.UTC()
	u.UpdatedAt = updatedAt.UTC()
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	uid, err := uuid.Parse(u.ID)
	if err != nil {
		return apperror.NewNotFound("user", u.ID)
	}

	query, args, err := psql.Update("users").
		SetMap(map[string]any{
			"name":       u.Name,
			"email":      u.Email,
			"phone":      u.Phone,
			"password":   u.Password,
			"updated_at": sq.Expr("now()"),
		}).
		Where(sq.Eq{"id": uid}).
		Suffix("RETURNING updated_at").
		ToSql()
	if err != nil {
		return apperror.NewInternal("build update user query", err)
	}

	var updatedAt time.Time
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&updatedAt); err != nil {
		return translate(err, "update user", u.ID, u.Email)
	}
	u.UpdatedAt = updatedAt.UTC()
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) (*entity.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apperror.NewNotFound("user", id)
	}

	query, args, err := psql.Delete("users").
		Where(sq.Eq{"id": uid}).
		Suffix("RETURNING id, name, email, phone, password, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, apperror.NewInternal("build delete user query", err)
	}

	u, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err, "delete user", id, "")
	}
	return u, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
