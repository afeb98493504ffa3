package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"arcana/internal/reward/models"
	"arcana/pkg/platform/sentinel"
)

// pq unique_violation; the dedup arbiter for referral and visit inserts.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// PostgresReferralStore persists referral dedup records.
type PostgresReferralStore struct {
	db *sql.DB
}

// NewPostgresReferrals constructs a Postgres-backed referral store.
func NewPostgresReferrals(db *sql.DB) *PostgresReferralStore {
	return &PostgresReferralStore{db: db}
}

func (s *PostgresReferralStore) Insert(ctx context.Context, referral models.Referral) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO referrals (id, referrer_key, referred_user_id, bonus_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, referral.ID, referral.ReferrerKey, referral.ReferredUserID, referral.BonusAmount, referral.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

func (s *PostgresReferralStore) CountSince(ctx context.Context, referrerKey string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM referrals WHERE referrer_key = $1 AND created_at >= $2
	`, referrerKey, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return count, nil
}

// PostgresShareVisitStore persists visit dedup records and their awards.
type PostgresShareVisitStore struct {
	db *sql.DB
}

// NewPostgresShareVisits constructs a Postgres-backed share-visit store.
func NewPostgresShareVisits(db *sql.DB) *PostgresShareVisitStore {
	return &PostgresShareVisitStore{db: db}
}

func (s *PostgresShareVisitStore) InsertVisit(ctx context.Context, award models.ShareVisitAward) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_visit_awards (id, shared_content_id, viewer_key, stars_awarded, created_at)
		VALUES ($1, $2, $3, 0, $4)
	`, award.ID, award.SharedContentID, award.ViewerKey, award.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert share visit: %w", err)
	}
	return nil
}

// MarkAwarded serializes concurrent awards for one content id on its
// shared_readings row lock, so the cap check and the mark act as one step.
func (s *PostgresShareVisitStore) MarkAwarded(ctx context.Context, visitID uuid.UUID, contentID string, stars, cap int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin award mark: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var lockedID string
	err = tx.QueryRowContext(ctx, `
		SELECT content_id FROM shared_readings WHERE content_id = $1 FOR UPDATE
	`, contentID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, sentinel.ErrNotFound
		}
		return false, fmt.Errorf("lock content row: %w", err)
	}

	var total int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(stars_awarded), 0) FROM share_visit_awards
		WHERE shared_content_id = $1
	`, contentID).Scan(&total); err != nil {
		return false, fmt.Errorf("sum awarded stars: %w", err)
	}
	if total+stars > cap {
		return false, tx.Commit()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE share_visit_awards SET stars_awarded = $2
		WHERE id = $1 AND stars_awarded = 0
	`, visitID, stars)
	if err != nil {
		return false, fmt.Errorf("mark visit awarded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark visit awarded: %w", err)
	}
	if n == 0 {
		return false, tx.Commit()
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit award mark: %w", err)
	}
	return true, nil
}

func (s *PostgresShareVisitStore) AwardedStars(ctx context.Context, contentID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(stars_awarded), 0) FROM share_visit_awards
		WHERE shared_content_id = $1
	`, contentID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum awarded stars: %w", err)
	}
	return total, nil
}

// PostgresAdWatchStore persists ad-watch records.
type PostgresAdWatchStore struct {
	db *sql.DB
}

// NewPostgresAdWatches constructs a Postgres-backed ad-watch store.
func NewPostgresAdWatches(db *sql.DB) *PostgresAdWatchStore {
	return &PostgresAdWatchStore{db: db}
}

func (s *PostgresAdWatchStore) Record(ctx context.Context, watch models.AdWatch) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ad_watches (id, identity_key, client_ip, stars_earned, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, watch.ID, watch.IdentityKey, watch.ClientIP, watch.StarsEarned, watch.CreatedAt)
	if err != nil {
		return fmt.Errorf("record ad watch: %w", err)
	}
	return nil
}

// PostgresContentStore persists shared-content ownership.
type PostgresContentStore struct {
	db *sql.DB
}

// NewPostgresContent constructs a Postgres-backed content-ownership store.
func NewPostgresContent(db *sql.DB) *PostgresContentStore {
	return &PostgresContentStore{db: db}
}

func (s *PostgresContentStore) Owner(ctx context.Context, contentID string) (string, error) {
	var owner sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_key FROM shared_readings WHERE content_id = $1
	`, contentID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup content owner: %w", err)
	}
	return owner.String, nil
}

func (s *PostgresContentStore) Record(ctx context.Context, contentID, ownerKey string) error {
	var owner any
	if ownerKey != "" {
		owner = ownerKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shared_readings (content_id, owner_key, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (content_id) DO NOTHING
	`, contentID, owner)
	if err != nil {
		return fmt.Errorf("record shared content: %w", err)
	}
	return nil
}
