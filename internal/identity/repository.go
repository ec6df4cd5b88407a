package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates no user matches.
	ErrNotFound = errors.New("user not found")

	// ErrHandleTaken indicates the handle is already registered.
	ErrHandleTaken = errors.New("handle already taken")
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByHandle(ctx context.Context, handle string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
}

// PostgresRepository implements Repository using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE users (
//	    id            UUID PRIMARY KEY,
//	    handle        TEXT NOT NULL UNIQUE,
//	    password_hash BYTEA NOT NULL,
//	    role          TEXT NOT NULL,
//	    created_at    TIMESTAMPTZ NOT NULL
//	);
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed user repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	_, err := r.db.Exec(ctx, `INSERT INTO users (id, handle, password_hash, role, created_at)
        VALUES ($1, $2, $3, $4, $5)`, user.ID, user.Handle, user.PasswordHash, user.Role, user.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrHandleTaken
		}
		return err
	}
	return nil
}

// FindByHandle fetches a user by handle.
func (r *PostgresRepository) FindByHandle(ctx context.Context, handle string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, handle, password_hash, role, created_at
        FROM users WHERE handle = $1`, handle)
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, handle, password_hash, role, created_at
        FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	var createdAt time.Time
	if err := row.Scan(&user.ID, &user.Handle, &user.PasswordHash, &user.Role, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.CreatedAt = createdAt.UTC()
	return user, nil
}
