// Package ports defines the award engine's storage contracts. Unique
// constraints in these stores, not in-process state, arbitrate exactly-once
// crediting.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"arcana/internal/reward/models"
)

// ReferralStore records processed referrals. Insert returns
// sentinel.ErrConflict when the (referrer, referred user) pair was already
// recorded; only the caller that wins the insert credits the bonus.
type ReferralStore interface {
	Insert(ctx context.Context, referral models.Referral) error

	// CountSince counts the referrer's processed referrals at or after since.
	// The weekly cap is derived here rather than from the ledger log, since a
	// ceiling-clamped bonus appends no log row but still consumes the cap.
	CountSince(ctx context.Context, referrerKey string, since time.Time) (int, error)
}

// ShareVisitStore records share visits and their awards.
type ShareVisitStore interface {
	// InsertVisit records a visit with zero stars. Returns
	// sentinel.ErrConflict when the (content, viewer) pair already exists.
	InsertVisit(ctx context.Context, award models.ShareVisitAward) error

	// MarkAwarded sets the visit's stars if the content's awarded total plus
	// stars stays within cap. The check and the mark are one atomic step;
	// returns false without mutation when the cap would be exceeded.
	MarkAwarded(ctx context.Context, visitID uuid.UUID, contentID string, stars, cap int) (bool, error)

	// AwardedStars sums the stars already awarded for the content.
	AwardedStars(ctx context.Context, contentID string) (int, error)
}

// AdWatchStore keeps the per-watch abuse-analysis records.
type AdWatchStore interface {
	Record(ctx context.Context, watch models.AdWatch) error
}

// ContentLookup resolves and records shared-content ownership.
type ContentLookup interface {
	// Owner returns the content's owner key, or "" when the content is
	// unknown or ownerless.
	Owner(ctx context.Context, contentID string) (string, error)

	// Record registers content ownership; later registrations for the same
	// content id do not overwrite the first owner.
	Record(ctx context.Context, contentID, ownerKey string) error
}

// IPLimiter counts ad watches per client IP within the current UTC day. A nil
// limiter disables the IP gate; it is a soft signal, not the primary cap.
type IPLimiter interface {
	// Incr increments the IP's counter for the day containing now and
	// returns the new count.
	Incr(ctx context.Context, ip string, now time.Time) (int, error)
}
