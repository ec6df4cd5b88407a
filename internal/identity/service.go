package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// WalletProvisioner creates the credit wallet that accompanies every new
// account.
type WalletProvisioner interface {
	CreateWallet(ctx context.Context, userID string) error
}

// Service manages the account lifecycle.
type Service struct {
	repo    Repository
	wallets WalletProvisioner
}

// NewService creates a new identity service.
func NewService(repo Repository, wallets WalletProvisioner) *Service {
	return &Service{repo: repo, wallets: wallets}
}

// Register creates a user with a hashed password and provisions the wallet
// with its starting balance.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	if len(creds.Handle) < 3 {
		return User{}, errors.New("handle must be at least 3 characters")
	}
	if len(creds.Password) < 8 {
		return User{}, errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Handle:       creds.Handle,
		PasswordHash: hash,
		Role:         RoleUser,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	if err := s.wallets.CreateWallet(ctx, user.ID); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByHandle(ctx, creds.Handle)
	if err != nil {
		return User{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, errors.New("invalid credentials")
	}
	return user, nil
}

// RegisteredAt reports when the account was created, for the loan age gate.
func (s *Service) RegisteredAt(ctx context.Context, userID string) (time.Time, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	return user.CreatedAt, nil
}
