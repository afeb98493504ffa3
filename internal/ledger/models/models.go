package models

import (
	"time"

	"github.com/google/uuid"

	id "arcana/pkg/domain"
)

// Balance is the single source of truth for an identity's stars.
// CurrentStars is never negative; the refill ceiling applies only to capped
// regenerative credits, never to explicit sets.
type Balance struct {
	IdentityKey  string    `json:"identity_key"`
	CurrentStars int       `json:"current_stars"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Transaction is one row of the append-only mutation log. The sign of Amount
// encodes credit vs debit. Rows are immutable once written; cadence caps are
// derived from this log rather than from mutable counters so they stay
// consistent with the ledger and re-derivable for audit.
type Transaction struct {
	ID          uuid.UUID          `json:"id"`
	IdentityKey string             `json:"identity_key"`
	Amount      int                `json:"amount"`
	Type        id.TransactionType `json:"type"`
	Description string             `json:"description"`
	CreatedAt   time.Time          `json:"created_at"`
}
