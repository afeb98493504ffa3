package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"arcana/internal/ledger/models"
	id "arcana/pkg/domain"
	"arcana/pkg/platform/sentinel"
)

// InMemoryStore keeps balances and the transaction log under one mutex, which
// gives the same per-identity serialization the Postgres store gets from row
// locks. Development and test use.
type InMemoryStore struct {
	mu       sync.Mutex
	balances map[string]*models.Balance
	log      map[string][]models.Transaction
	clock    func() time.Time
}

// MemoryOption configures an InMemoryStore.
type MemoryOption func(*InMemoryStore)

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemory constructs an empty in-memory ledger store.
func NewMemory(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		balances: make(map[string]*models.Balance),
		log:      make(map[string][]models.Transaction),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) GetOrCreate(_ context.Context, key string) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(key), nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[key]
	if !ok {
		return nil, nil
	}
	copied := *b
	return &copied, nil
}

func (s *InMemoryStore) getOrCreateLocked(key string) *models.Balance {
	if b, ok := s.balances[key]; ok {
		copied := *b
		return &copied
	}
	b := &models.Balance{IdentityKey: key, CurrentStars: 0, UpdatedAt: s.clock().UTC()}
	s.balances[key] = b
	copied := *b
	return &copied
}

// mutate runs compute over the current balance and applies its result with
// the paired transaction row in one critical section.
func (s *InMemoryStore) mutate(key string, txType id.TransactionType, description string, compute func(current int) (int, error)) (*models.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateLocked(key, txType, description, compute)
}

func (s *InMemoryStore) mutateLocked(key string, txType id.TransactionType, description string, compute func(current int) (int, error)) (*models.Balance, error) {
	s.getOrCreateLocked(key)
	b := s.balances[key]

	newStars, err := compute(b.CurrentStars)
	if err != nil {
		return nil, err
	}
	applied := newStars - b.CurrentStars
	now := s.clock().UTC()

	if applied != 0 {
		b.CurrentStars = newStars
		b.UpdatedAt = now
		s.log[key] = append(s.log[key], models.Transaction{
			ID:          uuid.New(),
			IdentityKey: key,
			Amount:      applied,
			Type:        txType,
			Description: description,
			CreatedAt:   now,
		})
	}

	copied := *b
	return &copied, nil
}

func cappedAdd(delta, ceiling int) func(current int) (int, error) {
	return func(current int) (int, error) {
		next := current + delta
		if ceiling > 0 && next > ceiling {
			next = ceiling
		}
		if next < current {
			// Already above the ceiling (e.g. after a purchase set); capped
			// adds never reduce a balance.
			next = current
		}
		return next, nil
	}
}

func (s *InMemoryStore) Add(_ context.Context, key string, delta, ceiling int, txType id.TransactionType, description string) (*models.Balance, error) {
	return s.mutate(key, txType, description, cappedAdd(delta, ceiling))
}

func (s *InMemoryStore) AddIfNoneSince(_ context.Context, key string, delta, ceiling int, txType id.TransactionType, description string, since time.Time) (*models.Balance, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.countLocked(key, txType, since) > 0 {
		return s.getOrCreateLocked(key), false, nil
	}
	b, err := s.mutateLocked(key, txType, description, cappedAdd(delta, ceiling))
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *InMemoryStore) Spend(_ context.Context, key string, amount int, description string) (*models.Balance, error) {
	return s.mutate(key, id.TxSpend, description, func(current int) (int, error) {
		if current < amount {
			return 0, sentinel.ErrInsufficient
		}
		return current - amount, nil
	})
}

func (s *InMemoryStore) Set(_ context.Context, key string, value int, description string) (*models.Balance, error) {
	return s.mutate(key, id.TxSet, description, func(int) (int, error) {
		return value, nil
	})
}

func (s *InMemoryStore) Refresh(_ context.Context, key string, ceiling int) (*models.Balance, error) {
	return s.mutate(key, id.TxRefill, "refill to ceiling", func(current int) (int, error) {
		if current >= ceiling {
			return current, nil
		}
		return ceiling, nil
	})
}

func (s *InMemoryStore) countLocked(key string, txType id.TransactionType, since time.Time) int {
	count := 0
	for _, tx := range s.log[key] {
		if tx.Type == txType && !tx.CreatedAt.Before(since) {
			count++
		}
	}
	return count
}

func (s *InMemoryStore) CountByTypeSince(_ context.Context, key string, txType id.TransactionType, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(key, txType, since), nil
}

func (s *InMemoryStore) SumByTypeSince(_ context.Context, key string, txType id.TransactionType, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := 0
	for _, tx := range s.log[key] {
		if tx.Type == txType && !tx.CreatedAt.Before(since) {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (s *InMemoryStore) ListTransactions(_ context.Context, key string, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.log[key]
	out := make([]models.Transaction, 0, limit)
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}
