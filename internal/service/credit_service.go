package service

import (
	"context"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// CreditService exposes the ledger to API clients. All mutation goes through
// the repository's transactional paths; this layer only reads and composes.
type CreditService interface {
	GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error)
	GetTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error)
	ListPackages(ctx context.Context) ([]model.CreditPackage, error)
	// Adjust is the operator path for manual corrections; amount is always
	// positive, use the description to explain the adjustment.
	Adjust(ctx context.Context, userID string, amount int, description string) (*model.CreditTransaction, error)
}

type creditService struct {
	repo         repository.CreditRepository
	creditLogger zerolog.Logger
}

// NewCreditService creates a new CreditService.
func NewCreditService(repo repository.CreditRepository, logger zerolog.Logger) CreditService {
	return &creditService{
		repo:         repo,
		creditLogger: logger.With().Str("service", "CreditService").Logger(),
	}
}

func (s *creditService) GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		s.creditLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to get credit balance")
		return nil, err
	}
	return balance, nil
}

func (s *creditService) GetTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	txns, err := s.repo.ListTransactions(ctx, userID, limit)
	if err != nil {
		s.creditLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list credit transactions")
		return nil, err
	}
	return txns, nil
}

func (s *creditService) ListPackages(ctx context.Context) ([]model.CreditPackage, error) {
	pkgs, err := s.repo.ListCreditPackages(ctx)
	if err != nil {
		s.creditLogger.Error().Err(err).Msg("Failed to list credit packages")
		return nil, err
	}
	return pkgs, nil
}

func (s *creditService) Adjust(ctx context.Context, userID string, amount int, description string) (*model.CreditTransaction, error) {
	txn, err := s.repo.GrantCredits(ctx, userID, model.TxnAdminAdjustment, amount, description)
	if err != nil {
		s.creditLogger.Error().Err(err).Str("user_id", userID).Int("amount", amount).Msg("Failed to apply credit adjustment")
		return nil, err
	}
	return txn, nil
}
