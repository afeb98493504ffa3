//go:build integration

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "arcana/pkg/domain"
	"arcana/pkg/platform/sentinel"
	"arcana/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "balances", "star_transactions"))
}

func (s *PostgresStoreSuite) TestGetOrCreateIsIdempotent() {
	b, err := s.store.GetOrCreate(s.ctx, "device:abc")
	s.Require().NoError(err)
	s.Equal(0, b.CurrentStars)

	again, err := s.store.GetOrCreate(s.ctx, "device:abc")
	s.Require().NoError(err)
	s.Equal(0, again.CurrentStars)

	var count int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM balances WHERE identity_key = $1`, "device:abc").Scan(&count))
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestConcurrentGetOrCreateSingleRow() {
	const goroutines = 20
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := s.store.GetOrCreate(s.ctx, "device:racer")
			s.NoError(err)
		}()
	}
	wg.Wait()

	var count int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM balances WHERE identity_key = $1`, "device:racer").Scan(&count))
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestAddClampsAtCeiling() {
	key := "device:capped"
	for i := 0; i < 7; i++ {
		b, err := s.store.Add(s.ctx, key, 2, 12, id.TxAdd, "bonus")
		s.Require().NoError(err)
		s.LessOrEqual(b.CurrentStars, 12)
	}

	b, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(12, b.CurrentStars)

	sum, err := s.store.SumByTypeSince(s.ctx, key, id.TxAdd, time.Time{})
	s.Require().NoError(err)
	s.Equal(12, sum, "log must record applied amounts, not requested ones")
}

func (s *PostgresStoreSuite) TestConcurrentAddsClampExactly() {
	key := "device:swarm"
	const goroutines = 30

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := s.store.Add(s.ctx, key, 1, 12, id.TxAdd, "tick")
			s.NoError(err)
		}()
	}
	wg.Wait()

	b, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(12, b.CurrentStars)

	sum, err := s.store.SumByTypeSince(s.ctx, key, id.TxAdd, time.Time{})
	s.Require().NoError(err)
	s.Equal(12, sum)
}

func (s *PostgresStoreSuite) TestNoOpAddAppendsNoRow() {
	key := "device:full"
	_, err := s.store.Set(s.ctx, key, 12, "seed")
	s.Require().NoError(err)

	b, err := s.store.Add(s.ctx, key, 3, 12, id.TxAdd, "extra")
	s.Require().NoError(err)
	s.Equal(12, b.CurrentStars)

	n, err := s.store.CountByTypeSince(s.ctx, key, id.TxAdd, time.Time{})
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PostgresStoreSuite) TestConcurrentConditionalAddsApplyOnce() {
	key := "device:claim-race"
	since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	const goroutines = 20
	var wg sync.WaitGroup
	var wins int64
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, applied, err := s.store.AddIfNoneSince(s.ctx, key, 3, 12, id.TxDailyClaim, "daily claim", since)
			if s.NoError(err) && applied {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(1, wins, "the balance row lock serializes the existence check")

	b, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(3, b.CurrentStars)

	n, err := s.store.CountByTypeSince(s.ctx, key, id.TxDailyClaim, since)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *PostgresStoreSuite) TestConditionalAddIgnoresRowsBeforeWindow() {
	key := "device:returning"
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clocked := NewPostgres(s.pg.DB, WithPostgresClock(func() time.Time { return base }))
	_, err := clocked.Add(s.ctx, key, 3, 12, id.TxDailyClaim, "daily claim")
	s.Require().NoError(err)

	since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	b, applied, err := s.store.AddIfNoneSince(s.ctx, key, 3, 12, id.TxDailyClaim, "daily claim", since)
	s.Require().NoError(err)
	s.True(applied)
	s.Equal(6, b.CurrentStars)
}

func (s *PostgresStoreSuite) TestSpendInsufficientRollsBack() {
	key := "device:poor"
	_, err := s.store.Add(s.ctx, key, 3, 0, id.TxAdd, "seed")
	s.Require().NoError(err)

	_, err = s.store.Spend(s.ctx, key, 5, "reading")
	s.ErrorIs(err, sentinel.ErrInsufficient)

	b, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(3, b.CurrentStars)

	n, err := s.store.CountByTypeSince(s.ctx, key, id.TxSpend, time.Time{})
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *PostgresStoreSuite) TestConcurrentSpendsNeverOverdraw() {
	key := "device:contested"
	_, err := s.store.Add(s.ctx, key, 10, 0, id.TxAdd, "seed")
	s.Require().NoError(err)

	const goroutines = 25
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := s.store.Spend(s.ctx, key, 1, "race")
			if err != nil {
				s.ErrorIs(err, sentinel.ErrInsufficient)
			}
		}()
	}
	wg.Wait()

	b, err := s.store.Get(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(0, b.CurrentStars)

	sum, err := s.store.SumByTypeSince(s.ctx, key, id.TxSpend, time.Time{})
	s.Require().NoError(err)
	s.Equal(-10, sum)
}

func (s *PostgresStoreSuite) TestSetAndRefresh() {
	key := "user:purchaser"
	b, err := s.store.Set(s.ctx, key, 100, "star pack")
	s.Require().NoError(err)
	s.Equal(100, b.CurrentStars)

	// Capped add above the ceiling must not reduce the balance.
	b, err = s.store.Add(s.ctx, key, 2, 12, id.TxAdd, "bonus")
	s.Require().NoError(err)
	s.Equal(100, b.CurrentStars)

	key2 := "device:refresher"
	_, err = s.store.Add(s.ctx, key2, 4, 12, id.TxAdd, "seed")
	s.Require().NoError(err)
	b, err = s.store.Refresh(s.ctx, key2, 12)
	s.Require().NoError(err)
	s.Equal(12, b.CurrentStars)
}

func (s *PostgresStoreSuite) TestListTransactionsRecencyOrder() {
	key := "device:lister"
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	clocked := NewPostgres(s.pg.DB, WithPostgresClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	for i := 0; i < 5; i++ {
		_, err := clocked.Add(s.ctx, key, 1, 0, id.TxAdd, "tick")
		s.Require().NoError(err)
	}

	txs, err := clocked.ListTransactions(s.ctx, key, 3)
	s.Require().NoError(err)
	s.Require().Len(txs, 3)
	s.True(txs[0].CreatedAt.After(txs[1].CreatedAt))
	s.True(txs[1].CreatedAt.After(txs[2].CreatedAt))
}
