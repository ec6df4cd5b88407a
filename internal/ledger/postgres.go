package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLedger persists entries in PostgreSQL. Entry ids come from a
// BIGSERIAL column, which gives the append-order monotonic sequence.
//
// Expected schema:
//
//	CREATE TABLE ledger_entries (
//	    id            BIGSERIAL PRIMARY KEY,
//	    op_id         TEXT NOT NULL,
//	    from_user_id  UUID,
//	    to_user_id    UUID,
//	    amount        NUMERIC(20, 2) NOT NULL CHECK (amount > 0),
//	    kind          TEXT NOT NULL,
//	    status        TEXT NOT NULL,
//	    note          TEXT NOT NULL DEFAULT '',
//	    balance_after NUMERIC(20, 2) NOT NULL DEFAULT 0,
//	    created_at    TIMESTAMPTZ NOT NULL,
//	    resolved_at   TIMESTAMPTZ
//	);
//	CREATE UNIQUE INDEX ledger_entries_op_id ON ledger_entries (op_id);
//
// The unique op_id index is what makes Append idempotent.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const entryColumns = `id, op_id, from_user_id, to_user_id, amount, kind, status, note, balance_after, created_at, resolved_at`

// Append validates and inserts the entry. A unique index on op_id makes the
// insert idempotent: losing the race returns the stored entry with
// ErrDuplicateOperation.
func (l *PostgresLedger) Append(ctx context.Context, entry Entry) (Entry, error) {
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}

	row := l.db.QueryRow(ctx, `INSERT INTO ledger_entries
        (op_id, from_user_id, to_user_id, amount, kind, status, note, balance_after, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+entryColumns,
		entry.OpID, entry.FromUserID, entry.ToUserID, entry.Amount, string(entry.Kind),
		string(entry.Status), entry.Note, entry.BalanceAfter, time.Now().UTC())

	stored, err := scanEntry(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, findErr := l.FindByOpID(ctx, entry.OpID)
			if findErr != nil {
				return Entry{}, findErr
			}
			return existing, ErrDuplicateOperation
		}
		return Entry{}, err
	}
	return stored, nil
}

// ResolvePending flips a pending entry to a terminal status. The status
// predicate in the WHERE clause is the atomic check, so only one resolution
// can ever succeed.
func (l *PostgresLedger) ResolvePending(ctx context.Context, id int64, status Status, note string, balanceAfter decimal.Decimal) (Entry, error) {
	if status != StatusCompleted && status != StatusRejected {
		return Entry{}, ErrInvalidTransition
	}

	row := l.db.QueryRow(ctx, `UPDATE ledger_entries
        SET status = $1,
            note = CASE WHEN $2 <> '' THEN $2 ELSE note END,
            balance_after = CASE WHEN $1 = 'completed' THEN $3 ELSE balance_after END,
            resolved_at = $4
        WHERE id = $5 AND status = 'pending'
        RETURNING `+entryColumns,
		string(status), note, balanceAfter, time.Now().UTC(), id)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := l.Get(ctx, id); getErr != nil {
				return Entry{}, getErr
			}
			return Entry{}, ErrNotPending
		}
		return Entry{}, err
	}
	return entry, nil
}

// Get fetches a single entry by id.
func (l *PostgresLedger) Get(ctx context.Context, id int64) (Entry, error) {
	row := l.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

// FindByOpID fetches the entry recorded for an operation id.
func (l *PostgresLedger) FindByOpID(ctx context.Context, opID string) (Entry, error) {
	row := l.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE op_id = $1`, opID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

// ListForUser pages the user's entries newest first.
func (l *PostgresLedger) ListForUser(ctx context.Context, userID string, limit int, before int64) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE (from_user_id = $1 OR to_user_id = $1) AND ($2 = 0 OR id < $2)
        ORDER BY id DESC LIMIT $3`, userID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListAll pages every entry newest first, for admin screens.
func (l *PostgresLedger) ListAll(ctx context.Context, limit int, before int64) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE $1 = 0 OR id < $1
        ORDER BY id DESC LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var entry Entry
	var kind, status string
	var createdAt time.Time
	var resolvedAt *time.Time
	if err := row.Scan(&entry.ID, &entry.OpID, &entry.FromUserID, &entry.ToUserID, &entry.Amount,
		&kind, &status, &entry.Note, &entry.BalanceAfter, &createdAt, &resolvedAt); err != nil {
		return Entry{}, err
	}
	entry.Kind = Kind(kind)
	entry.Status = Status(status)
	entry.CreatedAt = createdAt.UTC()
	if resolvedAt != nil {
		utc := resolvedAt.UTC()
		entry.ResolvedAt = &utc
	}
	return entry, nil
}
