// Package service implements the reward award engine: the daily claim, ad
// watch and social share credits, referral processing, and award-on-visit for
// shared readings. Crediting is exactly-once: dedup inserts under unique
// constraints arbitrate winners, and only the winner credits the ledger.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	ledgerports "arcana/internal/ledger/ports"
	"arcana/internal/policy"
	"arcana/internal/reward/metrics"
	"arcana/internal/reward/models"
	"arcana/internal/reward/ports"
	id "arcana/pkg/domain"
	dErrors "arcana/pkg/domain-errors"
	"arcana/pkg/platform/audit"
	"arcana/pkg/platform/sentinel"
	"arcana/pkg/requestcontext"
)

// ClaimResult reports a daily claim. Claimed is false when today's claim had
// already happened; the call is then a no-op echoing the current state.
type ClaimResult struct {
	Stars        int  `json:"stars"`
	Claimed      bool `json:"claimed"`
	StarsClaimed int  `json:"stars_claimed"`
}

// AdWatchResult reports a credited ad watch.
type AdWatchResult struct {
	Stars        int `json:"stars"`
	WatchesToday int `json:"watches_today"`
}

// ShareResult reports a credited social share.
type ShareResult struct {
	Stars       int `json:"stars"`
	SharesToday int `json:"shares_today"`
}

// ReferralResult reports a processed referral.
type ReferralResult struct {
	BonusStars int `json:"bonus_stars"`
}

// VisitResult reports an award-on-visit outcome. Credited false with a Reason
// means the visit was recorded without crediting; it is not an error.
type VisitResult struct {
	Credited     bool   `json:"credited"`
	StarsAwarded int    `json:"stars_awarded,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Deps bundles the award engine's collaborators. IPLimit and Publisher are
// optional; nil disables the IP gate and external audit delivery.
type Deps struct {
	Ledger    ledgerports.Store
	Checker   *policy.Checker
	Referrals ports.ReferralStore
	Visits    ports.ShareVisitStore
	AdWatches ports.AdWatchStore
	Content   ports.ContentLookup
	IPLimit   ports.IPLimiter
	Publisher audit.Publisher
	Metrics   *metrics.Metrics
}

// Service is the reward award engine.
type Service struct {
	deps   Deps
	cfg    policy.Config
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the award engine.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		deps:   deps,
		cfg:    deps.Checker.Config(),
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("arcana/reward"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) audit(ctx context.Context, action, identityKey string, amount int, outcome, reason string, details map[string]any) {
	audit.Log(ctx, s.logger, s.deps.Publisher, audit.Event{
		IdentityKey: identityKey,
		Action:      action,
		Amount:      amount,
		Outcome:     outcome,
		Reason:      reason,
		RequestID:   requestcontext.RequestID(ctx),
		Details:     details,
	})
}

// ClaimDaily credits the daily stars once per UTC day. A repeat claim is a
// no-op that echoes the current balance and today's claimed amount.
func (s *Service) ClaimDaily(ctx context.Context, ident id.Identity, now time.Time) (*ClaimResult, error) {
	ctx, span := s.tracer.Start(ctx, "reward.claim_daily")
	defer span.End()

	key := ident.Key()
	// The existence check and the credit are one atomic store operation;
	// concurrent duplicate claims race on the store's per-identity lock and
	// only one of them credits.
	b, applied, err := s.deps.Ledger.AddIfNoneSince(ctx, key, s.cfg.DailyClaimStars, s.cfg.RefillCeiling,
		id.TxDailyClaim, "daily claim", policy.StartOfDayUTC(now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit daily claim")
	}

	// The ceiling may have clamped the credit; report what actually landed.
	claimed, err := s.deps.Checker.DailyClaimedStars(ctx, key, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive claim state")
	}

	if !applied {
		s.deps.Metrics.DedupHits.WithLabelValues(string(id.TxDailyClaim)).Inc()
		s.audit(ctx, "claim_daily", key, 0, audit.OutcomeDeduped, "already_claimed", nil)
		return &ClaimResult{Stars: b.CurrentStars, Claimed: false, StarsClaimed: claimed}, nil
	}
	s.deps.Metrics.StarsCredited.WithLabelValues(string(id.TxDailyClaim)).Add(float64(claimed))
	s.audit(ctx, "claim_daily", key, claimed, audit.OutcomeCredited, "", nil)
	return &ClaimResult{Stars: b.CurrentStars, Claimed: true, StarsClaimed: claimed}, nil
}

// CreditAdWatch credits one ad watch, gated by the identity's daily cap and,
// when a limiter is configured, a per-IP counter. The IP gate is a soft
// anti-abuse signal: a limiter failure is logged and skipped, never fatal.
func (s *Service) CreditAdWatch(ctx context.Context, ident id.Identity, clientIP string, now time.Time) (*AdWatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "reward.credit_ad_watch")
	defer span.End()

	key := ident.Key()
	allowed, watched, err := s.deps.Checker.AdWatchAllowed(ctx, key, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive ad watch count")
	}
	if !allowed {
		s.deps.Metrics.CreditRefusals.WithLabelValues(string(id.TxAdWatch), "daily_cap").Inc()
		s.audit(ctx, "watch_ad", key, 0, audit.OutcomeRefused, "daily_cap", nil)
		return nil, dErrors.New(dErrors.CodeDailyLimitReached, "daily ad watch limit reached")
	}

	if s.deps.IPLimit != nil && clientIP != "" {
		n, err := s.deps.IPLimit.Incr(ctx, clientIP, now)
		if err != nil {
			s.logger.WarnContext(ctx, "ip limiter unavailable, skipping ip gate",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		} else if n > s.cfg.AdWatchDailyMax {
			s.deps.Metrics.CreditRefusals.WithLabelValues(string(id.TxAdWatch), "ip_cap").Inc()
			s.audit(ctx, "watch_ad", key, 0, audit.OutcomeRefused, "ip_cap", map[string]any{"client_ip": clientIP})
			return nil, dErrors.New(dErrors.CodeDailyLimitReached, "daily ad watch limit reached")
		}
	}

	b, err := s.deps.Ledger.Add(ctx, key, s.cfg.AdWatchStars, s.cfg.RefillCeiling, id.TxAdWatch, "ad watch reward")
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit ad watch")
	}

	watch := models.AdWatch{
		ID:          uuid.New(),
		IdentityKey: key,
		ClientIP:    clientIP,
		StarsEarned: s.cfg.AdWatchStars,
		CreatedAt:   now.UTC(),
	}
	if err := s.deps.AdWatches.Record(ctx, watch); err != nil {
		// The credit already landed; the watch record is analysis data only.
		s.logger.WarnContext(ctx, "failed to record ad watch",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	s.deps.Metrics.StarsCredited.WithLabelValues(string(id.TxAdWatch)).Add(float64(s.cfg.AdWatchStars))
	s.audit(ctx, "watch_ad", key, s.cfg.AdWatchStars, audit.OutcomeCredited, "", nil)
	return &AdWatchResult{Stars: b.CurrentStars, WatchesToday: watched + 1}, nil
}

// CreditSocialShare credits one social share, gated by the daily share cap.
// When contentID is given the share also registers content ownership so later
// visits to the shared reading can credit this identity.
func (s *Service) CreditSocialShare(ctx context.Context, ident id.Identity, platformRaw, contentID string, now time.Time) (*ShareResult, error) {
	ctx, span := s.tracer.Start(ctx, "reward.credit_social_share")
	defer span.End()

	if platformRaw == "" {
		return nil, dErrors.New(dErrors.CodeMissingPlatform, "platform is required")
	}
	platform, err := id.ParseSocialPlatform(platformRaw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown social platform")
	}

	key := ident.Key()
	allowed, shared, err := s.deps.Checker.SocialShareAllowed(ctx, key, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive share count")
	}
	if !allowed {
		s.deps.Metrics.CreditRefusals.WithLabelValues(string(id.TxSocialShare), "daily_cap").Inc()
		s.audit(ctx, "share", key, 0, audit.OutcomeRefused, "daily_cap", nil)
		return nil, dErrors.New(dErrors.CodeDailyLimitReached, "daily share limit reached")
	}

	b, err := s.deps.Ledger.Add(ctx, key, s.cfg.SocialShareStars, s.cfg.RefillCeiling, id.TxSocialShare, "share to "+string(platform))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit share")
	}

	if contentID != "" {
		if err := s.deps.Content.Record(ctx, contentID, key); err != nil {
			s.logger.WarnContext(ctx, "failed to register shared content",
				"error", err,
				"content_id", contentID,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}

	s.deps.Metrics.StarsCredited.WithLabelValues(string(id.TxSocialShare)).Add(float64(s.cfg.SocialShareStars))
	s.audit(ctx, "share", key, s.cfg.SocialShareStars, audit.OutcomeCredited, "", map[string]any{"platform": string(platform)})
	return &ShareResult{Stars: b.CurrentStars, SharesToday: shared + 1}, nil
}

// ProcessReferral credits the referrer named by referralCode for bringing in
// the referred user. The (referrer, referred) pair is processed at most once.
func (s *Service) ProcessReferral(ctx context.Context, referralCode string, referred id.Identity, now time.Time) (*ReferralResult, error) {
	ctx, span := s.tracer.Start(ctx, "reward.process_referral")
	defer span.End()

	if !referred.IsUser() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "referral requires an authenticated user")
	}

	referrerID, err := uuid.Parse(referralCode)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidReferralCode, "unknown referral code")
	}
	if referrerID == referred.UserID {
		s.deps.Metrics.CreditRefusals.WithLabelValues(string(id.TxReferralBonus), "self_referral").Inc()
		s.audit(ctx, "referral", referred.Key(), 0, audit.OutcomeRefused, "self_referral", nil)
		return nil, dErrors.New(dErrors.CodeSelfReferral, "cannot refer yourself")
	}

	referrer := id.UserIdentity(referrerID)
	referrerBalance, err := s.deps.Ledger.Get(ctx, referrer.Key())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up referrer")
	}
	if referrerBalance == nil {
		return nil, dErrors.New(dErrors.CodeInvalidReferralCode, "unknown referral code")
	}

	// The weekly cap counts processed referrals, not credited stars, so a
	// ceiling-clamped bonus still consumes it.
	referred7d, err := s.deps.Referrals.CountSince(ctx, referrer.Key(), policy.StartOfWeekUTC(now))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive referral count")
	}
	if referred7d >= s.cfg.ReferralWeeklyMax {
		s.deps.Metrics.CreditRefusals.WithLabelValues(string(id.TxReferralBonus), "weekly_cap").Inc()
		s.audit(ctx, "referral", referrer.Key(), 0, audit.OutcomeRefused, "weekly_cap", nil)
		return nil, dErrors.New(dErrors.CodeWeeklyLimitReached, "weekly referral limit reached")
	}

	referral := models.Referral{
		ID:             uuid.New(),
		ReferrerKey:    referrer.Key(),
		ReferredUserID: referred.UserID,
		BonusAmount:    s.cfg.ReferralBonusStars,
		CreatedAt:      now.UTC(),
	}
	if err := s.deps.Referrals.Insert(ctx, referral); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.deps.Metrics.DedupHits.WithLabelValues(string(id.TxReferralBonus)).Inc()
			s.audit(ctx, "referral", referrer.Key(), 0, audit.OutcomeDeduped, "already_processed", nil)
			return nil, dErrors.New(dErrors.CodeAlreadyProcessed, "referral already processed")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record referral")
	}

	if _, err := s.deps.Ledger.Add(ctx, referrer.Key(), s.cfg.ReferralBonusStars, s.cfg.RefillCeiling, id.TxReferralBonus, "referral bonus"); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit referral bonus")
	}

	s.deps.Metrics.StarsCredited.WithLabelValues(string(id.TxReferralBonus)).Add(float64(s.cfg.ReferralBonusStars))
	s.audit(ctx, "referral", referrer.Key(), s.cfg.ReferralBonusStars, audit.OutcomeCredited, "",
		map[string]any{"referred_user": referred.UserID.String()})
	return &ReferralResult{BonusStars: s.cfg.ReferralBonusStars}, nil
}

// AwardShareVisit records a visit to shared content and credits the owner for
// a first visit within the per-content cap. Non-crediting outcomes (duplicate
// viewer, unresolvable owner, self visit, cap reached) are soft: the visit
// stays recorded and the result carries the reason.
func (s *Service) AwardShareVisit(ctx context.Context, contentID string, viewer id.Identity, now time.Time) (*VisitResult, error) {
	ctx, span := s.tracer.Start(ctx, "reward.award_share_visit")
	defer span.End()

	if contentID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "content id is required")
	}

	visit := models.ShareVisitAward{
		ID:              uuid.New(),
		SharedContentID: contentID,
		ViewerKey:       viewer.Key(),
		CreatedAt:       now.UTC(),
	}
	if err := s.deps.Visits.InsertVisit(ctx, visit); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.deps.Metrics.DedupHits.WithLabelValues(string(id.TxShareVisit)).Inc()
			s.audit(ctx, "share_visit", viewer.Key(), 0, audit.OutcomeDeduped, models.ReasonAlreadyAwarded,
				map[string]any{"content_id": contentID})
			return &VisitResult{Credited: false, Reason: models.ReasonAlreadyAwarded}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record visit")
	}

	ownerKey, err := s.deps.Content.Owner(ctx, contentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve content owner")
	}
	if ownerKey == "" {
		s.audit(ctx, "share_visit", viewer.Key(), 0, audit.OutcomeRefused, models.ReasonOwnerUnresolved,
			map[string]any{"content_id": contentID})
		return &VisitResult{Credited: false, Reason: models.ReasonOwnerUnresolved}, nil
	}
	if ownerKey == viewer.Key() {
		s.audit(ctx, "share_visit", viewer.Key(), 0, audit.OutcomeRefused, models.ReasonSelfVisit,
			map[string]any{"content_id": contentID})
		return &VisitResult{Credited: false, Reason: models.ReasonSelfVisit}, nil
	}

	ok, err := s.deps.Visits.MarkAwarded(ctx, visit.ID, contentID, s.cfg.ShareVisitStars, s.cfg.ShareVisitContentCap)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark visit awarded")
	}
	if !ok {
		s.deps.Metrics.CreditRefusals.WithLabelValues(string(id.TxShareVisit), "content_cap").Inc()
		s.audit(ctx, "share_visit", ownerKey, 0, audit.OutcomeRefused, models.ReasonPerContentCapReached,
			map[string]any{"content_id": contentID})
		return &VisitResult{Credited: false, Reason: models.ReasonPerContentCapReached}, nil
	}

	if _, err := s.deps.Ledger.Add(ctx, ownerKey, s.cfg.ShareVisitStars, s.cfg.RefillCeiling, id.TxShareVisit, "shared reading visit"); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit visit award")
	}

	s.deps.Metrics.StarsCredited.WithLabelValues(string(id.TxShareVisit)).Add(float64(s.cfg.ShareVisitStars))
	s.audit(ctx, "share_visit", ownerKey, s.cfg.ShareVisitStars, audit.OutcomeCredited, "",
		map[string]any{"content_id": contentID, "viewer": viewer.Key()})
	return &VisitResult{Credited: true, StarsAwarded: s.cfg.ShareVisitStars}, nil
}
