// Package handler exposes the award endpoints: daily claim, ad watch, social
// share, referral processing, and award-on-visit for shared readings.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"arcana/internal/platform/middleware"
	"arcana/internal/reward/service"
	id "arcana/pkg/domain"
	dErrors "arcana/pkg/domain-errors"
	"arcana/pkg/platform/httputil"
	"arcana/pkg/requestcontext"
)

// Service defines the award operations the handler needs.
type Service interface {
	ClaimDaily(ctx context.Context, ident id.Identity, now time.Time) (*service.ClaimResult, error)
	CreditAdWatch(ctx context.Context, ident id.Identity, clientIP string, now time.Time) (*service.AdWatchResult, error)
	CreditSocialShare(ctx context.Context, ident id.Identity, platform, contentID string, now time.Time) (*service.ShareResult, error)
	ProcessReferral(ctx context.Context, referralCode string, referred id.Identity, now time.Time) (*service.ReferralResult, error)
	AwardShareVisit(ctx context.Context, contentID string, viewer id.Identity, now time.Time) (*service.VisitResult, error)
}

// Handler handles award endpoints.
type Handler struct {
	rewards Service
	logger  *slog.Logger
}

// New creates an award Handler.
func New(rewards Service, logger *slog.Logger) *Handler {
	return &Handler{rewards: rewards, logger: logger}
}

// Register registers the award routes with the chi router. Routes assume the
// identity resolver has already run.
func (h *Handler) Register(r chi.Router) {
	r.Post("/stars/claim-daily", h.handleClaimDaily)
	r.Post("/stars/watch-ad", h.handleWatchAd)
	r.Post("/stars/share", h.handleShare)
	r.With(middleware.RequireUser(h.logger)).Post("/referrals", h.handleReferral)
	r.Post("/shared/{contentID}/visit", h.handleShareVisit)
}

func (h *Handler) resolvedIdentity(w http.ResponseWriter, r *http.Request) (id.Identity, bool) {
	ident := requestcontext.Identity(r.Context())
	if ident.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeIdentityUnresolved, "no identity could be established"))
		return id.Identity{}, false
	}
	return ident, true
}

func (h *Handler) handleClaimDaily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	res, err := h.rewards.ClaimDaily(ctx, ident, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleWatchAd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	res, err := h.rewards.CreditAdWatch(ctx, ident, requestcontext.ClientIP(ctx), requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[ShareRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	res, err := h.rewards.CreditSocialShare(ctx, ident, req.Platform, req.ContentID, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReferral(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[ReferralRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	res, err := h.rewards.ProcessReferral(ctx, req.ReferralCode, ident, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleShareVisit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	contentID := chi.URLParam(r, "contentID")
	res, err := h.rewards.AwardShareVisit(ctx, contentID, ident, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
