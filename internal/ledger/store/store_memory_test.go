package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "arcana/pkg/domain"
	"arcana/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Get for missing key returns nil", func(t *testing.T) {
		s := NewMemory()
		b, err := s.Get(ctx, "device:missing")
		require.NoError(t, err)
		assert.Nil(t, b)
	})

	t.Run("GetOrCreate starts at zero", func(t *testing.T) {
		s := NewMemory()
		b, err := s.GetOrCreate(ctx, "device:fresh")
		require.NoError(t, err)
		assert.Equal(t, 0, b.CurrentStars)

		again, err := s.GetOrCreate(ctx, "device:fresh")
		require.NoError(t, err)
		assert.Equal(t, 0, again.CurrentStars)
	})

	t.Run("capped add clamps at ceiling", func(t *testing.T) {
		s := NewMemory()
		key := "device:capped"
		// 2 stars at a time, seven times: must clamp at 12, never exceed.
		var last int
		for i := 0; i < 7; i++ {
			b, err := s.Add(ctx, key, 2, 12, id.TxAdd, "reading bonus")
			require.NoError(t, err)
			assert.LessOrEqual(t, b.CurrentStars, 12)
			last = b.CurrentStars
		}
		assert.Equal(t, 12, last)

		// The log must reflect applied amounts only: total credited == 12.
		sum, err := s.SumByTypeSince(ctx, key, id.TxAdd, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 12, sum)
	})

	t.Run("add at ceiling is a no-op without a log row", func(t *testing.T) {
		s := NewMemory()
		key := "device:full"
		_, err := s.Set(ctx, key, 12, "seed")
		require.NoError(t, err)

		b, err := s.Add(ctx, key, 2, 12, id.TxAdd, "extra")
		require.NoError(t, err)
		assert.Equal(t, 12, b.CurrentStars)

		n, err := s.CountByTypeSince(ctx, key, id.TxAdd, time.Time{})
		require.NoError(t, err)
		assert.Zero(t, n, "no-op add must not append a transaction")
	})

	t.Run("capped add never reduces a balance above the ceiling", func(t *testing.T) {
		s := NewMemory()
		key := "user:whale"
		_, err := s.Set(ctx, key, 50, "purchase")
		require.NoError(t, err)

		b, err := s.Add(ctx, key, 2, 12, id.TxAdd, "bonus")
		require.NoError(t, err)
		assert.Equal(t, 50, b.CurrentStars)
	})

	t.Run("spend with insufficient balance leaves state untouched", func(t *testing.T) {
		s := NewMemory()
		key := "device:poor"
		_, err := s.Add(ctx, key, 3, 0, id.TxAdd, "seed")
		require.NoError(t, err)

		_, err = s.Spend(ctx, key, 5, "tarot reading")
		assert.ErrorIs(t, err, sentinel.ErrInsufficient)

		b, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 3, b.CurrentStars)

		n, err := s.CountByTypeSince(ctx, key, id.TxSpend, time.Time{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("spend debits and logs a negative amount", func(t *testing.T) {
		s := NewMemory()
		key := "device:buyer"
		_, err := s.Add(ctx, key, 10, 0, id.TxAdd, "seed")
		require.NoError(t, err)

		b, err := s.Spend(ctx, key, 4, "tarot reading")
		require.NoError(t, err)
		assert.Equal(t, 6, b.CurrentStars)

		sum, err := s.SumByTypeSince(ctx, key, id.TxSpend, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, -4, sum)
	})

	t.Run("set is uncapped and logs the difference", func(t *testing.T) {
		s := NewMemory()
		key := "user:purchaser"
		_, err := s.Add(ctx, key, 5, 12, id.TxAdd, "seed")
		require.NoError(t, err)

		b, err := s.Set(ctx, key, 100, "star pack purchase")
		require.NoError(t, err)
		assert.Equal(t, 100, b.CurrentStars)

		sum, err := s.SumByTypeSince(ctx, key, id.TxSet, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 95, sum)
	})

	t.Run("refresh tops up to ceiling and no-ops above", func(t *testing.T) {
		s := NewMemory()
		key := "device:refresher"
		_, err := s.Add(ctx, key, 4, 12, id.TxAdd, "seed")
		require.NoError(t, err)

		b, err := s.Refresh(ctx, key, 12)
		require.NoError(t, err)
		assert.Equal(t, 12, b.CurrentStars)

		b, err = s.Refresh(ctx, key, 12)
		require.NoError(t, err)
		assert.Equal(t, 12, b.CurrentStars)

		n, err := s.CountByTypeSince(ctx, key, id.TxRefill, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 1, n, "second refresh must not append a transaction")
	})

	t.Run("conditional add applies once per window", func(t *testing.T) {
		since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		s := NewMemory(WithClock(func() time.Time { return since.Add(time.Hour) }))
		key := "device:once"

		b, applied, err := s.AddIfNoneSince(ctx, key, 3, 12, id.TxDailyClaim, "daily claim", since)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, 3, b.CurrentStars)

		b, applied, err = s.AddIfNoneSince(ctx, key, 3, 12, id.TxDailyClaim, "daily claim", since)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, 3, b.CurrentStars)

		n, err := s.CountByTypeSince(ctx, key, id.TxDailyClaim, since)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("conditional add ignores rows before the window", func(t *testing.T) {
		yesterday := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		s := NewMemory(WithClock(func() time.Time { return yesterday }))
		key := "device:returning"
		_, err := s.Add(ctx, key, 3, 12, id.TxDailyClaim, "daily claim")
		require.NoError(t, err)

		since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		b, applied, err := s.AddIfNoneSince(ctx, key, 3, 12, id.TxDailyClaim, "daily claim", since)
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, 6, b.CurrentStars)
	})

	t.Run("list transactions is most recent first and bounded", func(t *testing.T) {
		clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		s := NewMemory(WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}))
		key := "device:lister"
		for i := 0; i < 5; i++ {
			_, err := s.Add(ctx, key, 1, 0, id.TxAdd, "tick")
			require.NoError(t, err)
		}

		txs, err := s.ListTransactions(ctx, key, 3)
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.True(t, txs[0].CreatedAt.After(txs[1].CreatedAt))
		assert.True(t, txs[1].CreatedAt.After(txs[2].CreatedAt))
	})
}

func TestInMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent uncapped adds are all applied", func(t *testing.T) {
		s := NewMemory()
		key := "device:concurrent"
		const goroutines = 100

		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				_, err := s.Add(ctx, key, 1, 0, id.TxAdd, "tick")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		b, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, goroutines, b.CurrentStars)

		n, err := s.CountByTypeSince(ctx, key, id.TxAdd, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, goroutines, n, "every applied add must have exactly one log row")
	})

	t.Run("concurrent conditional adds apply exactly once", func(t *testing.T) {
		since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		s := NewMemory(WithClock(func() time.Time { return since.Add(time.Hour) }))
		key := "device:claim-race"

		const goroutines = 50
		var wg sync.WaitGroup
		var wins int64
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				_, applied, err := s.AddIfNoneSince(ctx, key, 3, 12, id.TxDailyClaim, "daily claim", since)
				assert.NoError(t, err)
				if applied {
					atomic.AddInt64(&wins, 1)
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, wins, "one caller passes the existence check")

		b, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 3, b.CurrentStars)

		n, err := s.CountByTypeSince(ctx, key, id.TxDailyClaim, since)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("concurrent spends never drive the balance negative", func(t *testing.T) {
		s := NewMemory()
		key := "device:contested"
		_, err := s.Add(ctx, key, 10, 0, id.TxAdd, "seed")
		require.NoError(t, err)

		const goroutines = 50
		var wg sync.WaitGroup
		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				_, err := s.Spend(ctx, key, 1, "race")
				if err != nil {
					assert.ErrorIs(t, err, sentinel.ErrInsufficient)
				}
			}()
		}
		wg.Wait()

		b, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 0, b.CurrentStars)
	})
}
