package loans

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists loans in PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE loans (
//	    id                  UUID PRIMARY KEY,
//	    user_id             UUID NOT NULL,
//	    principal           NUMERIC(20, 2) NOT NULL,
//	    hourly_rate_percent NUMERIC(10, 4) NOT NULL,
//	    duration_hours      INT NOT NULL,
//	    total_owed          NUMERIC(20, 2) NOT NULL,
//	    status              TEXT NOT NULL,
//	    due_at              TIMESTAMPTZ,
//	    decided_at          TIMESTAMPTZ,
//	    note                TEXT NOT NULL DEFAULT '',
//	    created_at          TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX loans_one_open_per_user ON loans (user_id)
//	    WHERE status IN ('pending', 'approved');
//
// The partial unique index enforces the one-open-loan invariant; Create maps
// its violation to ErrNotEligible.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed loan store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const loanColumns = `id, user_id, principal, hourly_rate_percent, duration_hours, total_owed, status, due_at, decided_at, note, created_at`

// Create inserts a loan record.
func (s *PostgresStore) Create(ctx context.Context, loan Loan) error {
	_, err := s.db.Exec(ctx, `INSERT INTO loans
        (id, user_id, principal, hourly_rate_percent, duration_hours, total_owed, status, due_at, note, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		loan.ID, loan.UserID, loan.Principal, loan.HourlyRatePercent, loan.DurationHours,
		loan.TotalOwed, string(loan.Status), loan.DueAt, loan.Note, loan.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrNotEligible
		}
		return err
	}
	return nil
}

// Get fetches a loan by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Loan, error) {
	row := s.db.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	loan, err := scanLoan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Loan{}, ErrNotFound
	}
	return loan, err
}

// OpenLoanFor checks the eligibility gate.
func (s *PostgresStore) OpenLoanFor(ctx context.Context, userID string) (bool, error) {
	var open bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (
        SELECT 1 FROM loans WHERE user_id = $1 AND status IN ('pending', 'approved'))`, userID).Scan(&open)
	return open, err
}

// UpdateStatus transitions the loan atomically; the status predicate in the
// WHERE clause is the compare step.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status, note string) (Loan, error) {
	row := s.db.QueryRow(ctx, `UPDATE loans
        SET status = $1,
            decided_at = $2,
            note = CASE WHEN $3 <> '' THEN $3 ELSE note END
        WHERE id = $4 AND status = $5
        RETURNING `+loanColumns,
		string(to), time.Now().UTC(), note, id, string(from))

	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return Loan{}, getErr
			}
			return Loan{}, ErrInvalidTransition
		}
		return Loan{}, err
	}
	return loan, nil
}

// ListForUser returns the user's loans, newest first.
func (s *PostgresStore) ListForUser(ctx context.Context, userID string) ([]Loan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+loanColumns+` FROM loans
        WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

// ListApproved returns loans still approved, for overdue reporting.
func (s *PostgresStore) ListApproved(ctx context.Context) ([]Loan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+loanColumns+` FROM loans
        WHERE status = 'approved' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLoans(rows)
}

func collectLoans(rows pgx.Rows) ([]Loan, error) {
	var loans []Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func scanLoan(row pgx.Row) (Loan, error) {
	var loan Loan
	var status string
	var createdAt time.Time
	var dueAt, decidedAt *time.Time
	if err := row.Scan(&loan.ID, &loan.UserID, &loan.Principal, &loan.HourlyRatePercent,
		&loan.DurationHours, &loan.TotalOwed, &status, &dueAt, &decidedAt, &loan.Note, &createdAt); err != nil {
		return Loan{}, err
	}
	loan.Status = Status(status)
	loan.CreatedAt = createdAt.UTC()
	if dueAt != nil {
		utc := dueAt.UTC()
		loan.DueAt = &utc
	}
	if decidedAt != nil {
		utc := decidedAt.UTC()
		loan.DecidedAt = &utc
	}
	return loan, nil
}
