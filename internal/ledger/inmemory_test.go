package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func strPtr(s string) *string { return &s }

func completedTransfer(op string, amount int64) Entry {
	return Entry{
		OpID:       op,
		FromUserID: strPtr("alice"),
		ToUserID:   strPtr("bob"),
		Amount:     decimal.NewFromInt(amount),
		Kind:       KindTransfer,
		Status:     StatusCompleted,
	}
}

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	var lastID int64
	for i := 0; i < 5; i++ {
		entry, err := l.Append(ctx, completedTransfer(fmt.Sprintf("op-%d", i), 10))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if entry.ID <= lastID {
			t.Fatalf("expected id > %d, got %d", lastID, entry.ID)
		}
		lastID = entry.ID
	}
}

func TestAppendValidation(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	cases := map[string]Entry{
		"non-positive amount": {
			OpID: "a", FromUserID: strPtr("alice"), ToUserID: strPtr("bob"),
			Amount: decimal.Zero, Kind: KindTransfer, Status: StatusCompleted,
		},
		"both sides empty": {
			OpID: "b", Amount: decimal.NewFromInt(10), Kind: KindTransfer, Status: StatusCompleted,
		},
		"pending transfer not allowed": {
			OpID: "c", FromUserID: strPtr("alice"), ToUserID: strPtr("bob"),
			Amount: decimal.NewFromInt(10), Kind: KindTransfer, Status: StatusPending,
		},
		"top up with source wallet": {
			OpID: "d", FromUserID: strPtr("alice"), ToUserID: strPtr("bob"),
			Amount: decimal.NewFromInt(10), Kind: KindTopUp, Status: StatusPending,
		},
		"withdrawal with destination wallet": {
			OpID: "e", ToUserID: strPtr("bob"),
			Amount: decimal.NewFromInt(10), Kind: KindWithdrawal, Status: StatusPending,
		},
	}

	for name, entry := range cases {
		if _, err := l.Append(ctx, entry); !errors.Is(err, ErrInvalidEntry) {
			t.Fatalf("%s: expected ErrInvalidEntry, got %v", name, err)
		}
	}
}

func TestAppendDuplicateOpID(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	first, err := l.Append(ctx, completedTransfer("dup", 25))
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	again, err := l.Append(ctx, completedTransfer("dup", 25))
	if !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected stored entry %d back, got %d", first.ID, again.ID)
	}
}

func TestResolvePendingTransitions(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	entry, err := l.Append(ctx, Entry{
		OpID: "topup-1", ToUserID: strPtr("alice"),
		Amount: decimal.NewFromInt(100), Kind: KindTopUp, Status: StatusPending,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := l.ResolvePending(ctx, entry.ID, StatusPending, "", decimal.Zero); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	resolved, err := l.ResolvePending(ctx, entry.ID, StatusCompleted, "approved", decimal.NewFromInt(150))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", resolved.Status)
	}
	if !resolved.BalanceAfter.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected balance after 150, got %s", resolved.BalanceAfter)
	}
	if resolved.ResolvedAt == nil {
		t.Fatal("expected resolved timestamp to be set")
	}

	// Terminal entries stay terminal.
	if _, err := l.ResolvePending(ctx, entry.ID, StatusRejected, "", decimal.Zero); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestResolvePendingAtMostOnce(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	entry, err := l.Append(ctx, Entry{
		OpID: "wd-1", FromUserID: strPtr("alice"),
		Amount: decimal.NewFromInt(40), Kind: KindWithdrawal, Status: StatusPending,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	const deciders = 8
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < deciders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := StatusCompleted
			if i%2 == 0 {
				status = StatusRejected
			}
			if _, err := l.ResolvePending(ctx, entry.ID, status, "", decimal.Zero); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrNotPending) {
				t.Errorf("unexpected resolve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one resolution to win, got %d", wins)
	}
}

func TestListForUserNewestFirstAndRestartable(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := l.Append(ctx, completedTransfer(fmt.Sprintf("op-%d", i), 10)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	// An unrelated entry must not show up for alice.
	if _, err := l.Append(ctx, Entry{
		OpID: "other", ToUserID: strPtr("carol"),
		Amount: decimal.NewFromInt(5), Kind: KindBonus, Status: StatusCompleted,
	}); err != nil {
		t.Fatalf("append bonus: %v", err)
	}

	page, err := l.ListForUser(ctx, "alice", 4, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(page))
	}
	for i := 1; i < len(page); i++ {
		if page[i].ID >= page[i-1].ID {
			t.Fatalf("expected newest-first ordering, got ids %d then %d", page[i-1].ID, page[i].ID)
		}
	}

	rest, err := l.ListForUser(ctx, "alice", 10, page[len(page)-1].ID)
	if err != nil {
		t.Fatalf("list rest: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected remaining 2 entries, got %d", len(rest))
	}
}
