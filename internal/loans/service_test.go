package loans

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcadia-social/arcadia-credits/internal/credits"
	"github.com/arcadia-social/arcadia-credits/internal/ledger"
	"github.com/arcadia-social/arcadia-credits/internal/logging"
	"github.com/arcadia-social/arcadia-credits/internal/wallet"
)

type fakeDirectory struct {
	registered map[string]time.Time
}

func (d *fakeDirectory) RegisteredAt(_ context.Context, userID string) (time.Time, error) {
	at, ok := d.registered[userID]
	if !ok {
		return time.Time{}, errors.New("user not found")
	}
	return at, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(t *testing.T) (*Service, *credits.Engine, *fakeDirectory) {
	t.Helper()
	engine := credits.NewEngine(wallet.NewMemoryStore(), ledger.NewInMemory(), nil, logging.Discard(), credits.Params{})
	directory := &fakeDirectory{registered: make(map[string]time.Time)}
	service := NewService(NewMemoryStore(), engine, directory, nil, logging.Discard(), Params{
		MinPrincipal:  dec("10.00"),
		MaxPrincipal:  dec("5000.00"),
		MinAccountAge: 72 * time.Hour,
	})
	return service, engine, directory
}

func registerUser(t *testing.T, engine *credits.Engine, directory *fakeDirectory, userID string, age time.Duration) {
	t.Helper()
	if err := engine.CreateWallet(context.Background(), userID); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	directory.registered[userID] = time.Now().UTC().Add(-age)
}

func TestLoanMath(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()
	registerUser(t, engine, directory, "u1", 96*time.Hour)

	loan, err := service.Request(ctx, "u1", dec("1000.00"), dec("5"), 24)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// interest = 1000 * 0.05 * 24 = 1200.00
	if !loan.TotalOwed.Equal(dec("2200.00")) {
		t.Fatalf("expected total owed 2200.00, got %s", loan.TotalOwed)
	}
	if loan.Status != StatusPending {
		t.Fatalf("expected pending, got %s", loan.Status)
	}
	if loan.DueAt == nil {
		t.Fatal("expected due date to be set")
	}
}

func TestEligibilityGate(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()

	registerUser(t, engine, directory, "young", 24*time.Hour)
	if _, err := service.Request(ctx, "young", dec("100.00"), dec("1"), 12); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for young account, got %v", err)
	}

	registerUser(t, engine, directory, "u1", 96*time.Hour)
	if _, err := service.Request(ctx, "u1", dec("100.00"), dec("1"), 12); err != nil {
		t.Fatalf("request: %v", err)
	}
	// An open (pending) loan blocks a second request.
	if _, err := service.Request(ctx, "u1", dec("100.00"), dec("1"), 12); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible with open loan, got %v", err)
	}
}

func TestRejectionFreesEligibilityImmediately(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()
	registerUser(t, engine, directory, "u1", 96*time.Hour)

	loan, err := service.Request(ctx, "u1", dec("100.00"), dec("1"), 12)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := service.Decide(ctx, loan.ID, false, "not this time"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := service.Request(ctx, "u1", dec("100.00"), dec("1"), 12); err != nil {
		t.Fatalf("expected immediate re-request after rejection, got %v", err)
	}
}

func TestPrincipalBounds(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()
	registerUser(t, engine, directory, "u1", 96*time.Hour)

	for _, principal := range []string{"5.00", "6000.00"} {
		if _, err := service.Request(ctx, "u1", dec(principal), dec("1"), 12); !errors.Is(err, credits.ErrInvalidAmount) {
			t.Fatalf("principal %s: expected ErrInvalidAmount, got %v", principal, err)
		}
	}
	if _, err := service.Request(ctx, "u1", dec("100.00"), dec("-1"), 12); !errors.Is(err, credits.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative rate, got %v", err)
	}
	if _, err := service.Request(ctx, "u1", dec("100.00"), dec("1"), 0); !errors.Is(err, credits.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero duration, got %v", err)
	}
}

func TestApproveDisbursesPrincipal(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()
	registerUser(t, engine, directory, "u1", 96*time.Hour)

	loan, err := service.Request(ctx, "u1", dec("300.00"), dec("2"), 6)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	approved, err := service.Decide(ctx, loan.ID, true, "ok")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", approved.Status)
	}

	acct, err := engine.WalletOf(ctx, "u1")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !acct.Balance.Equal(dec("300.00")) {
		t.Fatalf("expected principal 300.00 disbursed, got %s", acct.Balance)
	}

	// Re-approving is an idempotent disbursement retry, not a double credit.
	if _, err := service.Decide(ctx, loan.ID, true, ""); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	acct, _ = engine.WalletOf(ctx, "u1")
	if !acct.Balance.Equal(dec("300.00")) {
		t.Fatalf("expected balance unchanged after re-approve, got %s", acct.Balance)
	}

	// Rejecting a decided loan is an invalid transition.
	if _, err := service.Decide(ctx, loan.ID, false, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRepayLifecycle(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()
	registerUser(t, engine, directory, "u1", 96*time.Hour)

	loan, err := service.Request(ctx, "u1", dec("100.00"), dec("5"), 10)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	// totalOwed = 100 + 100*0.05*10 = 150
	if !loan.TotalOwed.Equal(dec("150.00")) {
		t.Fatalf("expected total owed 150.00, got %s", loan.TotalOwed)
	}

	if _, err := service.Repay(ctx, loan.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition repaying a pending loan, got %v", err)
	}

	if _, err := service.Decide(ctx, loan.ID, true, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// Only the principal was disbursed; repayment needs 150.
	if _, err := service.Repay(ctx, loan.ID); !errors.Is(err, credits.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	got, err := service.Get(ctx, loan.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusApproved {
		t.Fatalf("expected loan to stay approved after failed repayment, got %s", got.Status)
	}

	if _, err := engine.Credit(ctx, "u1", dec("60.00"), ledger.KindBonus, "winnings", ""); err != nil {
		t.Fatalf("credit: %v", err)
	}
	paid, err := service.Repay(ctx, loan.ID)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if paid.Status != StatusPaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}

	acct, _ := engine.WalletOf(ctx, "u1")
	if !acct.Balance.Equal(dec("10.00")) {
		t.Fatalf("expected balance 10.00 after repayment, got %s", acct.Balance)
	}

	if _, err := service.Repay(ctx, loan.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double repay, got %v", err)
	}
}

func TestConcurrentDecisionsSingleWinner(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()
	registerUser(t, engine, directory, "u1", 96*time.Hour)

	loan, err := service.Request(ctx, "u1", dec("200.00"), dec("1"), 5)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	const admins = 6
	var wg sync.WaitGroup
	var mu sync.Mutex
	rejectWins := 0
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Decide(ctx, loan.ID, false, ""); err == nil {
				mu.Lock()
				rejectWins++
				mu.Unlock()
			} else if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("unexpected decide error: %v", err)
			}
		}()
	}
	wg.Wait()

	if rejectWins != 1 {
		t.Fatalf("expected exactly one rejection to win, got %d", rejectWins)
	}
	acct, _ := engine.WalletOf(ctx, "u1")
	if !acct.Balance.IsZero() {
		t.Fatalf("expected no disbursement on rejection, got %s", acct.Balance)
	}
}

func TestOverdueReporting(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()
	registerUser(t, engine, directory, "u1", 96*time.Hour)

	loan, err := service.Request(ctx, "u1", dec("50.00"), dec("1"), 1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := service.Decide(ctx, loan.ID, true, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	overdue, err := service.Overdue(ctx)
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 0 {
		t.Fatalf("expected nothing overdue yet, got %d", len(overdue))
	}

	got, err := service.Get(ctx, loan.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Overdue(time.Now().Add(2 * time.Hour)) {
		t.Fatal("expected loan to be overdue two hours past its term")
	}
}

func TestConcurrentRequestsSingleOpenLoan(t *testing.T) {
	service, engine, directory := newTestService(t)
	ctx := context.Background()
	registerUser(t, engine, directory, "u1", 96*time.Hour)

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := service.Request(ctx, "u1", dec("100.00"), dec("5"), 24)
			results[idx] = err
		}(i)
	}
	wg.Wait()

	var created int
	for _, err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrNotEligible):
		default:
			t.Fatalf("unexpected request error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one loan to be created, got %d", created)
	}
	loans, err := service.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(loans) != 1 {
		t.Fatalf("expected one stored loan, got %d", len(loans))
	}
}
