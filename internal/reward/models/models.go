// Package models defines the award engine's persistent records: dedup rows
// for referrals and share visits, ad-watch records, and shared-content
// ownership.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Referral is the dedup record for one (referrer, referred user) pair. The
// unique constraint on the pair is the sole arbiter for exactly-once referral
// crediting.
type Referral struct {
	ID             uuid.UUID `json:"id"`
	ReferrerKey    string    `json:"referrer_key"`
	ReferredUserID uuid.UUID `json:"referred_user_id"`
	BonusAmount    int       `json:"bonus_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

// ShareVisitAward is the dedup record for one (content, viewer) visit.
// StarsAwarded is zero while the visit is recorded but not credited; the
// per-content cap is the sum of StarsAwarded across the content's rows.
type ShareVisitAward struct {
	ID              uuid.UUID `json:"id"`
	SharedContentID string    `json:"shared_content_id"`
	ViewerKey       string    `json:"viewer_key"`
	StarsAwarded    int       `json:"stars_awarded"`
	CreatedAt       time.Time `json:"created_at"`
}

// AdWatch records one credited ad watch, kept for abuse analysis alongside
// the ledger's transaction row.
type AdWatch struct {
	ID          uuid.UUID `json:"id"`
	IdentityKey string    `json:"identity_key"`
	ClientIP    string    `json:"client_ip"`
	StarsEarned int       `json:"stars_earned"`
	CreatedAt   time.Time `json:"created_at"`
}

// SharedReading maps a shared content id to its owner. OwnerKey is empty when
// the content was registered without a resolvable owner.
type SharedReading struct {
	ContentID string    `json:"content_id"`
	OwnerKey  string    `json:"owner_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Visit outcome reasons returned with credited=false. The visit row stays
// recorded in every one of these cases.
const (
	ReasonAlreadyAwarded       = "already_awarded"
	ReasonOwnerUnresolved      = "owner_unresolved"
	ReasonSelfVisit            = "self_visit"
	ReasonPerContentCapReached = "per_content_cap_reached"
)
