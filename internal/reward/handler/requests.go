package handler

import (
	"strings"

	dErrors "arcana/pkg/domain-errors"
)

// ShareRequest credits a social share. ContentID optionally registers the
// shared reading so later visits can credit the sharer.
type ShareRequest struct {
	Platform  string `json:"platform"`
	ContentID string `json:"content_id,omitempty"`
}

func (r *ShareRequest) Validate() error {
	r.Platform = strings.TrimSpace(r.Platform)
	r.ContentID = strings.TrimSpace(r.ContentID)
	if r.Platform == "" {
		return dErrors.New(dErrors.CodeMissingPlatform, "platform is required")
	}
	return nil
}

// ReferralRequest processes a referral for the authenticated caller.
type ReferralRequest struct {
	ReferralCode string `json:"referral_code"`
}

func (r *ReferralRequest) Validate() error {
	r.ReferralCode = strings.TrimSpace(r.ReferralCode)
	if r.ReferralCode == "" {
		return dErrors.New(dErrors.CodeInvalidReferralCode, "referral code is required")
	}
	return nil
}
