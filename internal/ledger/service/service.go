// Package service implements balance operations over the ledger store:
// validation, sentinel translation, and the balance summary.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"arcana/internal/ledger/models"
	"arcana/internal/ledger/ports"
	"arcana/internal/policy"
	id "arcana/pkg/domain"
	dErrors "arcana/pkg/domain-errors"
	"arcana/pkg/platform/sentinel"
)

const (
	defaultTransactionLimit = 20
	maxTransactionLimit     = 100
)

// Summary is the balance view the stars endpoint returns: the balance plus
// today's cadence facts.
type Summary struct {
	Stars             int  `json:"stars"`
	CanClaimDaily     bool `json:"can_claim_daily"`
	DailyStarsClaimed int  `json:"daily_stars_claimed"`
	DailyAdWatches    int  `json:"daily_ad_watches"`
}

// Service exposes the ledger's balance operations.
type Service struct {
	store   ports.Store
	checker *policy.Checker
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a ledger Service.
func NewService(store ports.Store, checker *policy.Checker, opts ...Option) *Service {
	s := &Service{
		store:   store,
		checker: checker,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetSummary returns the identity's balance with today's cadence facts,
// creating a zero balance on first contact.
func (s *Service) GetSummary(ctx context.Context, ident id.Identity, now time.Time) (*Summary, error) {
	key := ident.Key()
	b, err := s.store.GetOrCreate(ctx, key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load balance")
	}

	canClaim, err := s.checker.CanClaimDaily(ctx, key, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive claim state")
	}
	claimed, err := s.checker.DailyClaimedStars(ctx, key, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive claim state")
	}
	watches, err := s.checker.AdWatchesToday(ctx, key, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive ad watch count")
	}

	return &Summary{
		Stars:             b.CurrentStars,
		CanClaimDaily:     canClaim,
		DailyStarsClaimed: claimed,
		DailyAdWatches:    watches,
	}, nil
}

// Add credits amount to the identity's balance, clamped to the refill ceiling.
func (s *Service) Add(ctx context.Context, ident id.Identity, amount int, description string) (*models.Balance, error) {
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	if description == "" {
		description = "star credit"
	}
	b, err := s.store.Add(ctx, ident.Key(), amount, s.checker.Config().RefillCeiling, id.TxAdd, description)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit stars")
	}
	s.logger.InfoContext(ctx, "stars credited",
		slog.String("identity", ident.Key()),
		slog.Int("amount", amount),
		slog.Int("balance", b.CurrentStars))
	return b, nil
}

// Spend debits amount from the identity's balance.
func (s *Service) Spend(ctx context.Context, ident id.Identity, amount int, description string) (*models.Balance, error) {
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	if description == "" {
		description = "star spend"
	}
	b, err := s.store.Spend(ctx, ident.Key(), amount, description)
	if err != nil {
		if errors.Is(err, sentinel.ErrInsufficient) {
			return nil, dErrors.New(dErrors.CodeInsufficientBalance, "not enough stars")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to spend stars")
	}
	s.logger.InfoContext(ctx, "stars spent",
		slog.String("identity", ident.Key()),
		slog.Int("amount", amount),
		slog.Int("balance", b.CurrentStars))
	return b, nil
}

// Set overwrites the identity's balance. The caller is responsible for
// authorization; the operation itself is uncapped.
func (s *Service) Set(ctx context.Context, ident id.Identity, value int, description string) (*models.Balance, error) {
	if value < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "balance cannot be negative")
	}
	if description == "" {
		description = "balance set"
	}
	b, err := s.store.Set(ctx, ident.Key(), value, description)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to set balance")
	}
	s.logger.InfoContext(ctx, "balance set",
		slog.String("identity", ident.Key()),
		slog.Int("balance", b.CurrentStars))
	return b, nil
}

// Transactions returns the identity's most recent transactions. A limit of
// zero applies the default; limits above the maximum are clamped.
func (s *Service) Transactions(ctx context.Context, ident id.Identity, limit int) ([]models.Transaction, error) {
	if limit < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "limit cannot be negative")
	}
	if limit == 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}
	txs, err := s.store.ListTransactions(ctx, ident.Key(), limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}
	return txs, nil
}
