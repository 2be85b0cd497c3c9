package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"app/internal/middleware"
	"app/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCreditService struct {
	limits []int
}

func (s *stubCreditService) GetBalance(_ context.Context, userID string) (*model.CreditBalance, error) {
	return &model.CreditBalance{UserID: userID, Available: 42}, nil
}

func (s *stubCreditService) GetTransactions(_ context.Context, _ string, limit int) ([]model.CreditTransaction, error) {
	s.limits = append(s.limits, limit)
	return nil, nil
}

func (s *stubCreditService) ListPackages(_ context.Context) ([]model.CreditPackage, error) {
	return nil, nil
}

func (s *stubCreditService) Adjust(_ context.Context, _ string, _ int, _ string) (*model.CreditTransaction, error) {
	return nil, nil
}

func creditsRequest(limit string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/users/me/credits?limit="+limit, nil)
	ctx := context.WithValue(req.Context(), middleware.UserContextKey, "user-1")
	return req.WithContext(ctx)
}

func TestGetCreditsRejectsOutOfRangeLimit(t *testing.T) {
	credits := &stubCreditService{}
	h := NewUserHandler(nil, credits, nil, nil)

	for _, limit := range []string{"-5", "0", "101", "abc"} {
		rr := httptest.NewRecorder()
		h.getCredits(rr, creditsRequest(limit))

		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", limit)
		assert.Contains(t, rr.Body.String(), "INVALID_INPUT", "limit=%s", limit)
	}
	assert.Empty(t, credits.limits)
}

func TestGetCreditsPassesValidLimitThrough(t *testing.T) {
	credits := &stubCreditService{}
	h := NewUserHandler(nil, credits, nil, nil)

	rr := httptest.NewRecorder()
	h.getCredits(rr, creditsRequest("5"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []int{5}, credits.limits)
	assert.Contains(t, rr.Body.String(), `"available":42`)
}
