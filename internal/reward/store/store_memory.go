// Package store provides the award engine's persistence: in-memory
// implementations for development and tests, Postgres for production, and a
// Redis-backed per-IP limiter.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"arcana/internal/reward/models"
	"arcana/pkg/platform/sentinel"
)

// MemoryReferralStore keeps referral dedup records in a map.
type MemoryReferralStore struct {
	mu   sync.Mutex
	seen map[string]models.Referral
}

// NewMemoryReferrals constructs an empty in-memory referral store.
func NewMemoryReferrals() *MemoryReferralStore {
	return &MemoryReferralStore{seen: make(map[string]models.Referral)}
}

func referralKey(referrerKey string, referredUserID uuid.UUID) string {
	return referrerKey + "|" + referredUserID.String()
}

func (s *MemoryReferralStore) Insert(_ context.Context, referral models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := referralKey(referral.ReferrerKey, referral.ReferredUserID)
	if _, ok := s.seen[key]; ok {
		return sentinel.ErrConflict
	}
	s.seen[key] = referral
	return nil
}

func (s *MemoryReferralStore) CountSince(_ context.Context, referrerKey string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.seen {
		if r.ReferrerKey == referrerKey && !r.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// MemoryShareVisitStore keeps visit dedup records and their awards in maps.
type MemoryShareVisitStore struct {
	mu      sync.Mutex
	byPair  map[string]uuid.UUID
	byID    map[uuid.UUID]*models.ShareVisitAward
	content map[string][]uuid.UUID
}

// NewMemoryShareVisits constructs an empty in-memory share-visit store.
func NewMemoryShareVisits() *MemoryShareVisitStore {
	return &MemoryShareVisitStore{
		byPair:  make(map[string]uuid.UUID),
		byID:    make(map[uuid.UUID]*models.ShareVisitAward),
		content: make(map[string][]uuid.UUID),
	}
}

func visitKey(contentID, viewerKey string) string {
	return contentID + "|" + viewerKey
}

func (s *MemoryShareVisitStore) InsertVisit(_ context.Context, award models.ShareVisitAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := visitKey(award.SharedContentID, award.ViewerKey)
	if _, ok := s.byPair[key]; ok {
		return sentinel.ErrConflict
	}
	copied := award
	copied.StarsAwarded = 0
	s.byPair[key] = copied.ID
	s.byID[copied.ID] = &copied
	s.content[copied.SharedContentID] = append(s.content[copied.SharedContentID], copied.ID)
	return nil
}

func (s *MemoryShareVisitStore) MarkAwarded(_ context.Context, visitID uuid.UUID, contentID string, stars, cap int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visit, ok := s.byID[visitID]
	if !ok || visit.SharedContentID != contentID {
		return false, sentinel.ErrNotFound
	}
	if visit.StarsAwarded != 0 {
		return false, nil
	}
	total := 0
	for _, id := range s.content[contentID] {
		total += s.byID[id].StarsAwarded
	}
	if total+stars > cap {
		return false, nil
	}
	visit.StarsAwarded = stars
	return true, nil
}

func (s *MemoryShareVisitStore) AwardedStars(_ context.Context, contentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, id := range s.content[contentID] {
		total += s.byID[id].StarsAwarded
	}
	return total, nil
}

// MemoryAdWatchStore keeps ad-watch records in a slice.
type MemoryAdWatchStore struct {
	mu      sync.Mutex
	watches []models.AdWatch
}

// NewMemoryAdWatches constructs an empty in-memory ad-watch store.
func NewMemoryAdWatches() *MemoryAdWatchStore {
	return &MemoryAdWatchStore{}
}

func (s *MemoryAdWatchStore) Record(_ context.Context, watch models.AdWatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches = append(s.watches, watch)
	return nil
}

// Watches returns a copy of the recorded watches, for tests.
func (s *MemoryAdWatchStore) Watches() []models.AdWatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AdWatch, len(s.watches))
	copy(out, s.watches)
	return out
}

// MemoryContentStore keeps shared-content ownership in a map.
type MemoryContentStore struct {
	mu      sync.Mutex
	content map[string]models.SharedReading
	clock   func() time.Time
}

// NewMemoryContent constructs an empty in-memory content-ownership store.
func NewMemoryContent() *MemoryContentStore {
	return &MemoryContentStore{content: make(map[string]models.SharedReading), clock: time.Now}
}

func (s *MemoryContentStore) Owner(_ context.Context, contentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content[contentID].OwnerKey, nil
}

func (s *MemoryContentStore) Record(_ context.Context, contentID, ownerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.content[contentID]; ok {
		return nil
	}
	s.content[contentID] = models.SharedReading{
		ContentID: contentID,
		OwnerKey:  ownerKey,
		CreatedAt: s.clock().UTC(),
	}
	return nil
}

// MemoryIPLimiter counts ad watches per IP and UTC day in a map.
type MemoryIPLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryIPLimiter constructs an empty in-memory IP limiter.
func NewMemoryIPLimiter() *MemoryIPLimiter {
	return &MemoryIPLimiter{counts: make(map[string]int)}
}

func (l *MemoryIPLimiter) Incr(_ context.Context, ip string, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ip + "|" + now.UTC().Format("2006-01-02")
	l.counts[key]++
	return l.counts[key], nil
}
