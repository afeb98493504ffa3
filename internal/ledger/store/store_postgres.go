package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"arcana/internal/ledger/models"
	id "arcana/pkg/domain"
	"arcana/pkg/platform/sentinel"
)

// PostgresStore persists balances and the transaction log in PostgreSQL.
// Per-identity serialization comes from a row lock on the balance row; every
// mutation commits the balance update and its transaction row in one
// transaction, so partial application cannot be observed.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed ledger store.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, key string) (*models.Balance, error) {
	query := `
		INSERT INTO balances (identity_key, current_stars, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (identity_key) DO UPDATE SET
			identity_key = EXCLUDED.identity_key
		RETURNING identity_key, current_stars, updated_at
	`
	b, err := scanBalance(s.db.QueryRowContext(ctx, query, key, s.clock().UTC()))
	if err != nil {
		return nil, fmt.Errorf("get or create balance: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*models.Balance, error) {
	query := `SELECT identity_key, current_stars, updated_at FROM balances WHERE identity_key = $1`
	b, err := scanBalance(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// mutate locks the balance row, runs compute over the current value, and
// applies the result together with its transaction row. The row lock is the
// serialization point for concurrent mutations of one identity.
func (s *PostgresStore) mutate(ctx context.Context, key string, txType id.TransactionType, description string, compute func(current int) (int, error)) (*models.Balance, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ledger mutation: %w", err)
	}
	defer func() {
		_ = dbtx.Rollback()
	}()

	now := s.clock().UTC()

	// Ensure the row exists, then lock it.
	if _, err := dbtx.ExecContext(ctx, `
		INSERT INTO balances (identity_key, current_stars, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (identity_key) DO NOTHING
	`, key, now); err != nil {
		return nil, fmt.Errorf("ensure balance row: %w", err)
	}

	var current int
	if err := dbtx.QueryRowContext(ctx, `
		SELECT current_stars FROM balances WHERE identity_key = $1 FOR UPDATE
	`, key).Scan(&current); err != nil {
		return nil, fmt.Errorf("lock balance row: %w", err)
	}

	newStars, err := compute(current)
	if err != nil {
		return nil, err
	}

	applied := newStars - current
	if applied == 0 {
		// No-op mutation: nothing to write, nothing to log.
		if err := dbtx.Commit(); err != nil {
			return nil, fmt.Errorf("commit ledger no-op: %w", err)
		}
		return &models.Balance{IdentityKey: key, CurrentStars: current, UpdatedAt: now}, nil
	}

	b, err := scanBalance(dbtx.QueryRowContext(ctx, `
		UPDATE balances SET current_stars = $2, updated_at = $3
		WHERE identity_key = $1
		RETURNING identity_key, current_stars, updated_at
	`, key, newStars, now))
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	if _, err := dbtx.ExecContext(ctx, `
		INSERT INTO star_transactions (id, identity_key, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), key, applied, string(txType), description, now); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	if err := dbtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger mutation: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Add(ctx context.Context, key string, delta, ceiling int, txType id.TransactionType, description string) (*models.Balance, error) {
	return s.mutate(ctx, key, txType, description, cappedAdd(delta, ceiling))
}

func (s *PostgresStore) AddIfNoneSince(ctx context.Context, key string, delta, ceiling int, txType id.TransactionType, description string, since time.Time) (*models.Balance, bool, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin conditional add: %w", err)
	}
	defer func() {
		_ = dbtx.Rollback()
	}()

	now := s.clock().UTC()

	if _, err := dbtx.ExecContext(ctx, `
		INSERT INTO balances (identity_key, current_stars, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (identity_key) DO NOTHING
	`, key, now); err != nil {
		return nil, false, fmt.Errorf("ensure balance row: %w", err)
	}

	var current int
	if err := dbtx.QueryRowContext(ctx, `
		SELECT current_stars FROM balances WHERE identity_key = $1 FOR UPDATE
	`, key).Scan(&current); err != nil {
		return nil, false, fmt.Errorf("lock balance row: %w", err)
	}

	// The count runs after the row lock is acquired, so a concurrent caller's
	// committed transaction row is visible here and only one caller passes.
	var n int
	if err := dbtx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM star_transactions
		WHERE identity_key = $1 AND type = $2 AND created_at >= $3
	`, key, string(txType), since).Scan(&n); err != nil {
		return nil, false, fmt.Errorf("count transactions: %w", err)
	}
	if n > 0 {
		if err := dbtx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit conditional add: %w", err)
		}
		return &models.Balance{IdentityKey: key, CurrentStars: current, UpdatedAt: now}, false, nil
	}

	newStars, _ := cappedAdd(delta, ceiling)(current)
	applied := newStars - current
	if applied == 0 {
		if err := dbtx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit conditional add: %w", err)
		}
		return &models.Balance{IdentityKey: key, CurrentStars: current, UpdatedAt: now}, true, nil
	}

	b, err := scanBalance(dbtx.QueryRowContext(ctx, `
		UPDATE balances SET current_stars = $2, updated_at = $3
		WHERE identity_key = $1
		RETURNING identity_key, current_stars, updated_at
	`, key, newStars, now))
	if err != nil {
		return nil, false, fmt.Errorf("update balance: %w", err)
	}
	if _, err := dbtx.ExecContext(ctx, `
		INSERT INTO star_transactions (id, identity_key, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New(), key, applied, string(txType), description, now); err != nil {
		return nil, false, fmt.Errorf("append transaction: %w", err)
	}
	if err := dbtx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit conditional add: %w", err)
	}
	return b, true, nil
}

func (s *PostgresStore) Spend(ctx context.Context, key string, amount int, description string) (*models.Balance, error) {
	return s.mutate(ctx, key, id.TxSpend, description, func(current int) (int, error) {
		if current < amount {
			return 0, sentinel.ErrInsufficient
		}
		return current - amount, nil
	})
}

func (s *PostgresStore) Set(ctx context.Context, key string, value int, description string) (*models.Balance, error) {
	return s.mutate(ctx, key, id.TxSet, description, func(int) (int, error) {
		return value, nil
	})
}

func (s *PostgresStore) Refresh(ctx context.Context, key string, ceiling int) (*models.Balance, error) {
	return s.mutate(ctx, key, id.TxRefill, "refill to ceiling", func(current int) (int, error) {
		if current >= ceiling {
			return current, nil
		}
		return ceiling, nil
	})
}

func (s *PostgresStore) CountByTypeSince(ctx context.Context, key string, txType id.TransactionType, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM star_transactions
		WHERE identity_key = $1 AND type = $2 AND created_at >= $3
	`, key, string(txType), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SumByTypeSince(ctx context.Context, key string, txType id.TransactionType, since time.Time) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM star_transactions
		WHERE identity_key = $1 AND type = $2 AND created_at >= $3
	`, key, string(txType), since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, key string, limit int) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_key, amount, type, description, created_at
		FROM star_transactions
		WHERE identity_key = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var txType string
		if err := rows.Scan(&tx.ID, &tx.IdentityKey, &tx.Amount, &txType, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Type = id.TransactionType(txType)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type balanceRow interface {
	Scan(dest ...any) error
}

func scanBalance(row balanceRow) (*models.Balance, error) {
	var b models.Balance
	if err := row.Scan(&b.IdentityKey, &b.CurrentStars, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
