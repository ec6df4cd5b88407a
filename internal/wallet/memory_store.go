package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryStore builds a concurrency-safe in-memory account store for tests
// and cacheless development runs.
func NewMemoryStore() Store {
	return &memoryStore{accounts: make(map[string]Account)}
}

func (s *memoryStore) Create(_ context.Context, userID string, startingBalance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[userID]; exists {
		return ErrAlreadyExists
	}
	s.accounts[userID] = Account{
		UserID:          userID,
		Balance:         startingBalance,
		StartingBalance: startingBalance,
		UpdatedAt:       time.Now().UTC(),
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, userID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (s *memoryStore) CompareAndSetBalance(_ context.Context, userID string, expected, next decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return false, ErrNotFound
	}
	if !acct.Balance.Equal(expected) {
		return false, nil
	}
	acct.Balance = next
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = acct
	return true, nil
}

func (s *memoryStore) List(_ context.Context) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts := make([]Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		accounts = append(accounts, acct)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].UserID < accounts[j].UserID })
	return accounts, nil
}
