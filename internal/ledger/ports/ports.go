// Package ports defines the storage contract of the stars ledger.
package ports

import (
	"context"
	"time"

	"arcana/internal/ledger/models"
	id "arcana/pkg/domain"
)

// Store is the ledger's storage interface. Implementations must make every
// mutation atomic per identity: the balance change and its transaction row
// commit together or not at all, and concurrent mutations for one identity
// serialize at the store. A mutation that applies a zero delta (capped add at
// ceiling, refresh at ceiling) appends no transaction row.
type Store interface {
	// GetOrCreate returns the existing balance or inserts a zero one.
	// Concurrent first calls for the same identity must not create
	// duplicate rows.
	GetOrCreate(ctx context.Context, key string) (*models.Balance, error)

	// Get returns the balance, or nil when the identity has none yet.
	Get(ctx context.Context, key string) (*models.Balance, error)

	// Add credits delta (> 0) to the balance. When ceiling > 0 the result is
	// clamped to it and the transaction records the applied, clamped amount.
	Add(ctx context.Context, key string, delta, ceiling int, txType id.TransactionType, description string) (*models.Balance, error)

	// AddIfNoneSince performs Add only when no transaction of txType exists at
	// or after since. The existence check and the credit run under the same
	// per-identity serialization as every other mutation, so concurrent calls
	// cannot both pass the check. The bool reports whether the add ran.
	AddIfNoneSince(ctx context.Context, key string, delta, ceiling int, txType id.TransactionType, description string, since time.Time) (*models.Balance, bool, error)

	// Spend debits amount (> 0) when the balance suffices, else returns
	// sentinel.ErrInsufficient and leaves the balance untouched.
	Spend(ctx context.Context, key string, amount int, description string) (*models.Balance, error)

	// Set overwrites the balance with value (>= 0); the transaction records
	// the signed difference. Uncapped.
	Set(ctx context.Context, key string, value int, description string) (*models.Balance, error)

	// Refresh tops the balance up to ceiling when below it; a no-op at or
	// above.
	Refresh(ctx context.Context, key string, ceiling int) (*models.Balance, error)

	// CountByTypeSince counts transactions of one type at or after since.
	CountByTypeSince(ctx context.Context, key string, txType id.TransactionType, since time.Time) (int, error)

	// SumByTypeSince sums transaction amounts of one type at or after since.
	SumByTypeSince(ctx context.Context, key string, txType id.TransactionType, since time.Time) (int, error)

	// ListTransactions returns up to limit transactions, most recent first.
	ListTransactions(ctx context.Context, key string, limit int) ([]models.Transaction, error)
}
