package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore persists accounts in PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE wallet_accounts (
//	    user_id          UUID PRIMARY KEY,
//	    balance          NUMERIC(20, 2) NOT NULL CHECK (balance >= 0),
//	    starting_balance NUMERIC(20, 2) NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed account store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the account row with its starting balance.
func (s *PostgresStore) Create(ctx context.Context, userID string, startingBalance decimal.Decimal) error {
	_, err := s.db.Exec(ctx, `INSERT INTO wallet_accounts (user_id, balance, starting_balance, updated_at)
        VALUES ($1, $2, $3, $4)`, userID, startingBalance, startingBalance, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Get fetches the account for a user.
func (s *PostgresStore) Get(ctx context.Context, userID string) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT user_id, balance, starting_balance, updated_at
        FROM wallet_accounts WHERE user_id = $1`, userID)
	return scanAccount(row)
}

// CompareAndSetBalance performs the optimistic update in a single statement:
// the WHERE clause on the current balance is the compare step, the affected
// row count reports whether it won.
func (s *PostgresStore) CompareAndSetBalance(ctx context.Context, userID string, expected, next decimal.Decimal) (bool, error) {
	cmd, err := s.db.Exec(ctx, `UPDATE wallet_accounts SET balance = $1, updated_at = $2
        WHERE user_id = $3 AND balance = $4`, next, time.Now().UTC(), userID, expected)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	// Distinguish a lost race from a missing account.
	if _, err := s.Get(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

// List returns all accounts ordered by user id, for admin overviews.
func (s *PostgresStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id, balance, starting_balance, updated_at
        FROM wallet_accounts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var acct Account
	var updatedAt time.Time
	if err := row.Scan(&acct.UserID, &acct.Balance, &acct.StartingBalance, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	acct.UpdatedAt = updatedAt.UTC()
	return acct, nil
}
