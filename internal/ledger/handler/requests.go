package handler

import (
	"strings"

	dErrors "arcana/pkg/domain-errors"
)

// AddStarsRequest credits stars to the caller's balance.
type AddStarsRequest struct {
	Amount      int    `json:"amount"`
	Description string `json:"description,omitempty"`
}

func (r *AddStarsRequest) Validate() error {
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	r.Description = strings.TrimSpace(r.Description)
	return nil
}

// SpendStarsRequest debits stars from the caller's balance.
type SpendStarsRequest struct {
	Amount      int    `json:"amount"`
	Description string `json:"description,omitempty"`
}

func (r *SpendStarsRequest) Validate() error {
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	r.Description = strings.TrimSpace(r.Description)
	return nil
}

// SetStarsRequest overwrites the caller's balance. Reserved for purchase
// fulfillment and support tooling; the admin token is verified against a
// bcrypt hash held in configuration.
type SetStarsRequest struct {
	Stars       int    `json:"stars"`
	AdminToken  string `json:"admin_token"`
	Description string `json:"description,omitempty"`
}

func (r *SetStarsRequest) Validate() error {
	if r.Stars < 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "stars cannot be negative")
	}
	if strings.TrimSpace(r.AdminToken) == "" {
		return dErrors.New(dErrors.CodeForbidden, "admin token required")
	}
	r.Description = strings.TrimSpace(r.Description)
	return nil
}
