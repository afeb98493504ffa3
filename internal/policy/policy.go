// Package policy holds the reward caps and cadence rules. All decisions are
// derived from the transaction log and dedup tables, never from mutable
// counters, so a cap can always be re-derived for audit.
package policy

import (
	"context"
	"time"

	"arcana/internal/ledger/ports"
	id "arcana/pkg/domain"
)

// Config groups every cap and reward amount. Zero values are not meaningful;
// construct via DefaultConfig and override fields as needed.
type Config struct {
	// RefillCeiling bounds regenerative credits. Purchased or admin-set
	// balances may exceed it; capped adds never reduce them.
	RefillCeiling int

	DailyClaimStars int

	AdWatchStars    int
	AdWatchDailyMax int

	SocialShareStars    int
	SocialShareDailyMax int

	ReferralBonusStars int
	ReferralWeeklyMax  int

	ShareVisitStars      int
	ShareVisitContentCap int
}

// DefaultConfig returns the production cap set.
func DefaultConfig() Config {
	return Config{
		RefillCeiling:        12,
		DailyClaimStars:      3,
		AdWatchStars:         1,
		AdWatchDailyMax:      10,
		SocialShareStars:     1,
		SocialShareDailyMax:  3,
		ReferralBonusStars:   5,
		ReferralWeeklyMax:    10,
		ShareVisitStars:      1,
		ShareVisitContentCap: 5,
	}
}

// StartOfDayUTC returns midnight UTC of the day containing t. All daily
// cadence windows reset at this boundary regardless of client timezone.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfWeekUTC returns the rolling seven-day window start for weekly caps.
func StartOfWeekUTC(t time.Time) time.Time {
	return t.UTC().Add(-7 * 24 * time.Hour)
}

// Checker answers cadence questions for one identity by querying the ledger's
// transaction log. It holds no state of its own.
type Checker struct {
	store ports.Store
	cfg   Config
}

// NewChecker builds a Checker over the given ledger store.
func NewChecker(store ports.Store, cfg Config) *Checker {
	return &Checker{store: store, cfg: cfg}
}

// Config exposes the cap set the checker was built with.
func (c *Checker) Config() Config {
	return c.cfg
}

// CanClaimDaily reports whether the identity has not yet claimed today.
func (c *Checker) CanClaimDaily(ctx context.Context, key string, now time.Time) (bool, error) {
	n, err := c.store.CountByTypeSince(ctx, key, id.TxDailyClaim, StartOfDayUTC(now))
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// DailyClaimedStars returns the stars credited by today's claim, zero when the
// identity has not claimed yet.
func (c *Checker) DailyClaimedStars(ctx context.Context, key string, now time.Time) (int, error) {
	return c.store.SumByTypeSince(ctx, key, id.TxDailyClaim, StartOfDayUTC(now))
}

// AdWatchesToday counts the identity's credited ad watches since midnight UTC.
func (c *Checker) AdWatchesToday(ctx context.Context, key string, now time.Time) (int, error) {
	return c.store.CountByTypeSince(ctx, key, id.TxAdWatch, StartOfDayUTC(now))
}

// AdWatchAllowed reports whether another ad watch may be credited today,
// together with today's count.
func (c *Checker) AdWatchAllowed(ctx context.Context, key string, now time.Time) (bool, int, error) {
	n, err := c.AdWatchesToday(ctx, key, now)
	if err != nil {
		return false, 0, err
	}
	return n < c.cfg.AdWatchDailyMax, n, nil
}

// SocialSharesToday counts the identity's credited shares since midnight UTC.
func (c *Checker) SocialSharesToday(ctx context.Context, key string, now time.Time) (int, error) {
	return c.store.CountByTypeSince(ctx, key, id.TxSocialShare, StartOfDayUTC(now))
}

// SocialShareAllowed reports whether another share may be credited today,
// together with today's count.
func (c *Checker) SocialShareAllowed(ctx context.Context, key string, now time.Time) (bool, int, error) {
	n, err := c.SocialSharesToday(ctx, key, now)
	if err != nil {
		return false, 0, err
	}
	return n < c.cfg.SocialShareDailyMax, n, nil
}
