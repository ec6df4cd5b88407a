package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type inMemoryLedger struct {
	mu      sync.RWMutex
	nextID  int64
	entries []Entry
	byOpID  map[string]int
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit
// tests and cacheless development runs.
func NewInMemory() Ledger {
	return &inMemoryLedger{nextID: 1, byOpID: make(map[string]int)}
}

func (l *inMemoryLedger) Append(_ context.Context, entry Entry) (Entry, error) {
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.OpID != "" {
		if idx, exists := l.byOpID[entry.OpID]; exists {
			return l.entries[idx], ErrDuplicateOperation
		}
	}

	entry.ID = l.nextID
	l.nextID++
	entry.CreatedAt = time.Now().UTC()
	entry.ResolvedAt = nil

	l.entries = append(l.entries, entry)
	if entry.OpID != "" {
		l.byOpID[entry.OpID] = len(l.entries) - 1
	}
	return entry, nil
}

func (l *inMemoryLedger) ResolvePending(_ context.Context, id int64, status Status, note string, balanceAfter decimal.Decimal) (Entry, error) {
	if status != StatusCompleted && status != StatusRejected {
		return Entry{}, ErrInvalidTransition
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := int(id) - 1
	if idx < 0 || idx >= len(l.entries) {
		return Entry{}, ErrNotFound
	}
	entry := l.entries[idx]
	if entry.Status != StatusPending {
		return Entry{}, ErrNotPending
	}

	now := time.Now().UTC()
	entry.Status = status
	entry.ResolvedAt = &now
	if note != "" {
		entry.Note = note
	}
	if status == StatusCompleted {
		entry.BalanceAfter = balanceAfter
	}
	l.entries[idx] = entry
	return entry, nil
}

func (l *inMemoryLedger) Get(_ context.Context, id int64) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := int(id) - 1
	if idx < 0 || idx >= len(l.entries) {
		return Entry{}, ErrNotFound
	}
	return l.entries[idx], nil
}

func (l *inMemoryLedger) FindByOpID(_ context.Context, opID string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byOpID[opID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return l.entries[idx], nil
}

func (l *inMemoryLedger) ListForUser(_ context.Context, userID string, limit int, before int64) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(limit, before, func(e Entry) bool { return e.Touches(userID) }), nil
}

func (l *inMemoryLedger) ListAll(_ context.Context, limit int, before int64) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collect(limit, before, func(Entry) bool { return true }), nil
}

func (l *inMemoryLedger) collect(limit int, before int64, match func(Entry) bool) []Entry {
	if limit <= 0 {
		limit = 50
	}
	out := make([]Entry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		entry := l.entries[i]
		if before > 0 && entry.ID >= before {
			continue
		}
		if match(entry) {
			out = append(out, entry)
		}
	}
	return out
}
