package service

import (
	"context"
	"fmt"
	"time"

	"tapdash/internal/auth"
	"tapdash/internal/game"
	"tapdash/internal/repository"
)

// AccountService resolves handshake tokens into identities. Registration
// and credential handling belong to the external auth service; this side
// only verifies the shared-secret signature and reads the user row.
type AccountService struct {
	postgresRepo *repository.PostgresRepository
	tokenSecret  string
}

// NewAccountService creates a new account service
func NewAccountService(postgresRepo *repository.PostgresRepository, tokenSecret string) *AccountService {
	return &AccountService{
		postgresRepo: postgresRepo,
		tokenSecret:  tokenSecret,
	}
}

// Authenticate verifies a handshake token and returns the cached-copy
// identity the core will hold for this connection's lifetime.
func (s *AccountService) Authenticate(ctx context.Context, token string) (game.Identity, error) {
	userID, err := auth.Verify(token, s.tokenSecret, time.Now())
	if err != nil {
		return game.Identity{}, err
	}

	user, err := s.postgresRepo.GetUserByID(ctx, userID)
	if err != nil {
		return game.Identity{}, fmt.Errorf("identity lookup failed: %w", err)
	}

	return game.Identity{
		ID:     user.ID,
		Handle: user.Handle,
		Rating: user.Rating,
	}, nil
}
