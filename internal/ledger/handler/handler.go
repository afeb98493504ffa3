// Package handler exposes the balance endpoints: summary, add, spend,
// admin-guarded set, and the transaction listing.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"arcana/internal/ledger/models"
	"arcana/internal/ledger/service"
	"arcana/internal/platform/middleware"
	id "arcana/pkg/domain"
	dErrors "arcana/pkg/domain-errors"
	"arcana/pkg/platform/httputil"
	"arcana/pkg/requestcontext"
	"arcana/pkg/secrets"
)

// Service defines the balance operations the handler needs.
type Service interface {
	GetSummary(ctx context.Context, ident id.Identity, now time.Time) (*service.Summary, error)
	Add(ctx context.Context, ident id.Identity, amount int, description string) (*models.Balance, error)
	Spend(ctx context.Context, ident id.Identity, amount int, description string) (*models.Balance, error)
	Set(ctx context.Context, ident id.Identity, value int, description string) (*models.Balance, error)
	Transactions(ctx context.Context, ident id.Identity, limit int) ([]models.Transaction, error)
}

// Handler handles balance endpoints.
type Handler struct {
	ledger         Service
	logger         *slog.Logger
	adminTokenHash string
}

// New creates a balance Handler. adminTokenHash is the bcrypt hash guarding
// absolute set; when empty the endpoint is disabled.
func New(ledger Service, logger *slog.Logger, adminTokenHash string) *Handler {
	return &Handler{ledger: ledger, logger: logger, adminTokenHash: adminTokenHash}
}

// Register registers the balance routes with the chi router. Routes assume
// the identity resolver has already run.
func (h *Handler) Register(r chi.Router) {
	r.Get("/stars", h.handleGetStars)
	r.Post("/stars/add", h.handleAddStars)
	r.Post("/stars/spend", h.handleSpendStars)
	r.Get("/stars/transactions", h.handleListTransactions)
	r.With(middleware.RequireUser(h.logger)).Post("/stars/set", h.handleSetStars)
}

func (h *Handler) resolvedIdentity(w http.ResponseWriter, r *http.Request) (id.Identity, bool) {
	ident := requestcontext.Identity(r.Context())
	if ident.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeIdentityUnresolved, "no identity could be established"))
		return id.Identity{}, false
	}
	return ident, true
}

func (h *Handler) handleGetStars(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	summary, err := h.ledger.GetSummary(ctx, ident, requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load balance summary",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleAddStars(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[AddStarsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	b, err := h.ledger.Add(ctx, ident, req.Amount, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newBalanceResponse(b))
}

func (h *Handler) handleSpendStars(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[SpendStarsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	b, err := h.ledger.Spend(ctx, ident, req.Amount, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newBalanceResponse(b))
}

func (h *Handler) handleSetStars(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[SetStarsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	if h.adminTokenHash == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "balance set is not enabled"))
		return
	}
	if err := secrets.Verify(req.AdminToken, h.adminTokenHash); err != nil {
		h.logger.WarnContext(ctx, "rejected balance set with bad admin token",
			"identity", ident.Key(),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "invalid admin token"))
		return
	}

	b, err := h.ledger.Set(ctx, ident, req.Stars, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newBalanceResponse(b))
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := h.resolvedIdentity(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be an integer"))
			return
		}
		limit = parsed
	}

	txs, err := h.ledger.Transactions(ctx, ident, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newTransactionListResponse(txs))
}
