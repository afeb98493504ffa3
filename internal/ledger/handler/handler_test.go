package handler

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"arcana/internal/ledger/service"
	"arcana/internal/ledger/store"
	"arcana/internal/policy"
	id "arcana/pkg/domain"
	dErrors "arcana/pkg/domain-errors"
	"arcana/pkg/requestcontext"
	"arcana/pkg/secrets"
	"arcana/pkg/testutil"
)

type LedgerHandlerSuite struct {
	suite.Suite
	now    time.Time
	store  *store.InMemoryStore
	router chi.Router
	ident  id.Identity
}

func TestLedgerHandlerSuite(t *testing.T) {
	suite.Run(t, new(LedgerHandlerSuite))
}

const testAdminToken = "hunter2-admin"

func (s *LedgerHandlerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	s.store = store.NewMemory(store.WithClock(func() time.Time { return s.now }))
	s.ident = id.DeviceIdentity("test-device-token")

	logger := slog.New(slog.DiscardHandler)
	svc := service.NewService(s.store, policy.NewChecker(s.store, policy.DefaultConfig()),
		service.WithLogger(logger))

	hash, err := secrets.Hash(testAdminToken)
	s.Require().NoError(err)

	h := New(svc, logger, hash)
	s.router = chi.NewRouter()
	// Stand-in for the identity resolver chain.
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithIdentity(r.Context(), s.ident)
			ctx = requestcontext.WithTime(ctx, s.now)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	h.Register(s.router)
}

func (s *LedgerHandlerSuite) TestGetStarsSummary() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/stars")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[service.Summary](s.T(), rr)
	s.Equal(0, resp.Stars)
	s.True(resp.CanClaimDaily)
}

func (s *LedgerHandlerSuite) TestAddStars() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/stars/add", AddStarsRequest{Amount: 5})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[BalanceResponse](s.T(), rr)
	s.Equal(5, resp.Stars)
}

func (s *LedgerHandlerSuite) TestAddStarsRejectsNonPositiveAmount() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/stars/add", AddStarsRequest{Amount: -1})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidAmount))
}

func (s *LedgerHandlerSuite) TestSpendStars() {
	_, err := s.store.Add(s.T().Context(), s.ident.Key(), 10, 0, id.TxAdd, "seed")
	s.Require().NoError(err)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/stars/spend",
		SpendStarsRequest{Amount: 4, Description: "tarot reading"})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[BalanceResponse](s.T(), rr)
	s.Equal(6, resp.Stars)
}

func (s *LedgerHandlerSuite) TestSpendStarsInsufficientIsConflict() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/stars/spend", SpendStarsRequest{Amount: 4})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeInsufficientBalance))
}

func (s *LedgerHandlerSuite) TestSetStarsRequiresUserIdentity() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/stars/set",
		SetStarsRequest{Stars: 50, AdminToken: testAdminToken})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *LedgerHandlerSuite) TestSetStarsWithAdminToken() {
	s.ident = id.UserIdentity(uuid.New())

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/stars/set",
		SetStarsRequest{Stars: 50, AdminToken: testAdminToken, Description: "star pack"})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[BalanceResponse](s.T(), rr)
	s.Equal(50, resp.Stars)
}

func (s *LedgerHandlerSuite) TestSetStarsRejectsBadAdminToken() {
	s.ident = id.UserIdentity(uuid.New())

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/stars/set",
		SetStarsRequest{Stars: 50, AdminToken: "wrong"})
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, string(dErrors.CodeForbidden))
}

func (s *LedgerHandlerSuite) TestListTransactions() {
	ctx := s.T().Context()
	for i := 0; i < 3; i++ {
		_, err := s.store.Set(ctx, s.ident.Key(), (i+1)*2, "tick")
		s.Require().NoError(err)
	}

	req := testutil.NewRequest(s.T(), http.MethodGet, "/stars/transactions?limit=2")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[TransactionListResponse](s.T(), rr)
	s.Len(resp.Transactions, 2)
}

func (s *LedgerHandlerSuite) TestListTransactionsRejectsBadLimit() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/stars/transactions?limit=nope")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
}
