//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"arcana/internal/reward/models"
	"arcana/pkg/platform/sentinel"
	"arcana/pkg/testutil/containers"
)

type RewardStoresSuite struct {
	suite.Suite
	ctx       context.Context
	pg        *containers.PostgresContainer
	referrals *PostgresReferralStore
	visits    *PostgresShareVisitStore
	adWatches *PostgresAdWatchStore
	content   *PostgresContentStore
}

func TestRewardStoresSuite(t *testing.T) {
	suite.Run(t, new(RewardStoresSuite))
}

func (s *RewardStoresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.referrals = NewPostgresReferrals(s.pg.DB)
	s.visits = NewPostgresShareVisits(s.pg.DB)
	s.adWatches = NewPostgresAdWatches(s.pg.DB)
	s.content = NewPostgresContent(s.pg.DB)
}

func (s *RewardStoresSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx,
		"referrals", "share_visit_awards", "ad_watches", "shared_readings"))
}

func (s *RewardStoresSuite) referral(referrerKey string, referred uuid.UUID) models.Referral {
	return models.Referral{
		ID:             uuid.New(),
		ReferrerKey:    referrerKey,
		ReferredUserID: referred,
		BonusAmount:    5,
		CreatedAt:      time.Now().UTC(),
	}
}

func (s *RewardStoresSuite) TestReferralInsertDeduplicates() {
	referred := uuid.New()
	s.Require().NoError(s.referrals.Insert(s.ctx, s.referral("user:a", referred)))

	err := s.referrals.Insert(s.ctx, s.referral("user:a", referred))
	s.ErrorIs(err, sentinel.ErrConflict)

	// A different referred user for the same referrer is a new pair.
	s.NoError(s.referrals.Insert(s.ctx, s.referral("user:a", uuid.New())))

	n, err := s.referrals.CountSince(s.ctx, "user:a", time.Now().UTC().Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *RewardStoresSuite) TestConcurrentReferralInsertsOneWinner() {
	referred := uuid.New()
	const goroutines = 10

	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if err := s.referrals.Insert(s.ctx, s.referral("user:b", referred)); err == nil {
				wins <- struct{}{}
			} else {
				s.ErrorIs(err, sentinel.ErrConflict)
			}
		}()
	}
	wg.Wait()
	close(wins)
	s.Len(wins, 1)
}

func (s *RewardStoresSuite) visit(contentID, viewerKey string) models.ShareVisitAward {
	return models.ShareVisitAward{
		ID:              uuid.New(),
		SharedContentID: contentID,
		ViewerKey:       viewerKey,
		CreatedAt:       time.Now().UTC(),
	}
}

func (s *RewardStoresSuite) TestShareVisitDedupAndCap() {
	s.Require().NoError(s.content.Record(s.ctx, "reading-1", "user:owner"))

	first := s.visit("reading-1", "device:v1")
	s.Require().NoError(s.visits.InsertVisit(s.ctx, first))
	s.ErrorIs(s.visits.InsertVisit(s.ctx, s.visit("reading-1", "device:v1")), sentinel.ErrConflict)

	ok, err := s.visits.MarkAwarded(s.ctx, first.ID, "reading-1", 1, 5)
	s.Require().NoError(err)
	s.True(ok)

	total, err := s.visits.AwardedStars(s.ctx, "reading-1")
	s.Require().NoError(err)
	s.Equal(1, total)
}

func (s *RewardStoresSuite) TestMarkAwardedEnforcesCapUnderConcurrency() {
	s.Require().NoError(s.content.Record(s.ctx, "reading-2", "user:owner"))

	const viewers = 12
	const capLimit = 5
	ids := make([]uuid.UUID, 0, viewers)
	for i := 0; i < viewers; i++ {
		v := s.visit("reading-2", "device:c"+uuid.NewString())
		s.Require().NoError(s.visits.InsertVisit(s.ctx, v))
		ids = append(ids, v.ID)
	}

	var wg sync.WaitGroup
	marked := make(chan bool, viewers)
	wg.Add(viewers)
	for _, visitID := range ids {
		go func(visitID uuid.UUID) {
			defer wg.Done()
			ok, err := s.visits.MarkAwarded(s.ctx, visitID, "reading-2", 1, capLimit)
			if s.NoError(err) {
				marked <- ok
			}
		}(visitID)
	}
	wg.Wait()
	close(marked)

	wins := 0
	for ok := range marked {
		if ok {
			wins++
		}
	}
	s.Equal(capLimit, wins)

	total, err := s.visits.AwardedStars(s.ctx, "reading-2")
	s.Require().NoError(err)
	s.Equal(capLimit, total)
}

func (s *RewardStoresSuite) TestContentOwnershipFirstWriteWins() {
	s.Require().NoError(s.content.Record(s.ctx, "reading-3", "user:first"))
	s.Require().NoError(s.content.Record(s.ctx, "reading-3", "user:second"))

	owner, err := s.content.Owner(s.ctx, "reading-3")
	s.Require().NoError(err)
	s.Equal("user:first", owner)

	owner, err = s.content.Owner(s.ctx, "never-shared")
	s.Require().NoError(err)
	s.Empty(owner)
}

func (s *RewardStoresSuite) TestAdWatchRecords() {
	watch := models.AdWatch{
		ID:          uuid.New(),
		IdentityKey: "device:watcher",
		ClientIP:    "203.0.113.9",
		StarsEarned: 1,
		CreatedAt:   time.Now().UTC(),
	}
	s.Require().NoError(s.adWatches.Record(s.ctx, watch))

	var n int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
		`SELECT COUNT(*) FROM ad_watches WHERE identity_key = $1`, "device:watcher").Scan(&n))
	s.Equal(1, n)
}
