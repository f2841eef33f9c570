package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rewardloop/credit-service/internal/app"
	"github.com/rewardloop/credit-service/internal/store"
)

func TestWriteServiceErrorStatusMapping(t *testing.T) {
	h := NewCreditHandlers(nil)

	testCases := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		retryable      bool
	}{
		{name: "insufficient credit", err: &app.InsufficientCreditError{Available: 1000, Required: 4000}, expectedStatus: http.StatusPaymentRequired, expectedCode: "insufficient_credit"},
		{name: "invalid amount", err: app.ErrInvalidAmount, expectedStatus: http.StatusBadRequest, expectedCode: "invalid_amount"},
		{name: "invalid code format", err: fmt.Errorf("%w: too short", app.ErrInvalidCodeFormat), expectedStatus: http.StatusBadRequest, expectedCode: "invalid_code_format"},
		{name: "hierarchy violation", err: app.ErrHierarchyViolation, expectedStatus: http.StatusUnprocessableEntity, expectedCode: "hierarchy_violation"},
		{name: "account suspended", err: app.ErrAccountSuspended, expectedStatus: http.StatusUnprocessableEntity, expectedCode: "account_suspended"},
		{name: "campaign inactive", err: app.ErrCampaignInactive, expectedStatus: http.StatusUnprocessableEntity, expectedCode: "campaign_inactive"},
		{name: "no supply", err: app.ErrNoSupply, expectedStatus: http.StatusConflict, expectedCode: "no_supply"},
		{name: "already redeemed", err: app.ErrAlreadyRedeemed, expectedStatus: http.StatusConflict, expectedCode: "already_redeemed"},
		{name: "rate limited", err: app.ErrRateLimited, expectedStatus: http.StatusTooManyRequests, expectedCode: "rate_limited", retryable: true},
		{name: "vendor unavailable", err: app.ErrVendorUnavailable, expectedStatus: http.StatusBadGateway, expectedCode: "vendor_unavailable", retryable: true},
		{name: "account not found", err: store.ErrAccountNotFound, expectedStatus: http.StatusNotFound, expectedCode: "account_not_found"},
		{name: "campaign not found", err: store.ErrCampaignNotFound, expectedStatus: http.StatusNotFound, expectedCode: "campaign_not_found"},
		{name: "pool not found", err: store.ErrPoolNotFound, expectedStatus: http.StatusNotFound, expectedCode: "pool_not_found"},
		{name: "code not found", err: store.ErrRedemptionCodeNotFound, expectedStatus: http.StatusNotFound, expectedCode: "code_not_found"},
		{name: "concurrency conflict", err: store.ErrConcurrencyConflict, expectedStatus: http.StatusServiceUnavailable, expectedCode: "concurrency_conflict", retryable: true},
		{name: "wrapped store error", err: fmt.Errorf("allocate: %w", store.ErrConcurrencyConflict), expectedStatus: http.StatusServiceUnavailable, expectedCode: "concurrency_conflict", retryable: true},
		{name: "unknown error", err: errors.New("boom"), expectedStatus: http.StatusInternalServerError, expectedCode: "internal_error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.writeServiceError(recorder, tc.err)

			if recorder.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d", tc.expectedStatus, recorder.Code)
			}
			var body errorResponse
			if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != tc.expectedCode {
				t.Fatalf("expected code %q, got %q", tc.expectedCode, body.Code)
			}
			if body.Retryable != tc.retryable {
				t.Fatalf("expected retryable=%v, got %v", tc.retryable, body.Retryable)
			}
			if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected JSON content type, got %q", ct)
			}
		})
	}
}

func TestWriteServiceErrorInsufficientCreditCarriesAmounts(t *testing.T) {
	h := NewCreditHandlers(nil)

	recorder := httptest.NewRecorder()
	h.writeServiceError(recorder, &app.InsufficientCreditError{Available: 1000, Required: 4000})

	var body errorResponse
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Available == nil || *body.Available != 1000 {
		t.Fatalf("expected available=1000, got %v", body.Available)
	}
	if body.Required == nil || *body.Required != 4000 {
		t.Fatalf("expected required=4000, got %v", body.Required)
	}
}
