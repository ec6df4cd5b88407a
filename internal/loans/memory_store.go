package loans

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu    sync.RWMutex
	loans map[string]Loan
}

// NewMemoryStore builds an in-memory loan store for tests and cacheless
// development runs.
func NewMemoryStore() Store {
	return &memoryStore{loans: make(map[string]Loan)}
}

func (s *memoryStore) Create(_ context.Context, loan Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The one-open-loan invariant is enforced here, under the write lock,
	// so racing requests cannot both pass the service's eligibility read.
	if loan.Status.Open() {
		for _, existing := range s.loans {
			if existing.UserID == loan.UserID && existing.Status.Open() {
				return ErrNotEligible
			}
		}
	}
	s.loans[loan.ID] = loan
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[id]
	if !ok {
		return Loan{}, ErrNotFound
	}
	return loan, nil
}

func (s *memoryStore) OpenLoanFor(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, loan := range s.loans {
		if loan.UserID == userID && loan.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id string, from, to Status, note string) (Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return Loan{}, ErrNotFound
	}
	if loan.Status != from {
		return Loan{}, ErrInvalidTransition
	}
	now := time.Now().UTC()
	loan.Status = to
	loan.DecidedAt = &now
	if note != "" {
		loan.Note = note
	}
	s.loans[id] = loan
	return loan, nil
}

func (s *memoryStore) ListForUser(_ context.Context, userID string) ([]Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Loan
	for _, loan := range s.loans {
		if loan.UserID == userID {
			out = append(out, loan)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *memoryStore) ListApproved(_ context.Context) ([]Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Loan
	for _, loan := range s.loans {
		if loan.Status == StatusApproved {
			out = append(out, loan)
		}
	}
	sortByCreation(out)
	return out, nil
}

func sortByCreation(loans []Loan) {
	sort.Slice(loans, func(i, j int) bool { return loans[i].CreatedAt.After(loans[j].CreatedAt) })
}
