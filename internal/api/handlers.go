/**
 * @description
 * This file contains the HTTP handlers for the credit service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the
 * appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rewardloop/credit-service/internal/app"
	"github.com/rewardloop/credit-service/internal/domain"
	"github.com/rewardloop/credit-service/internal/store"
)

// CreditHandlers holds the application service that handlers will use.
type CreditHandlers struct {
	service *app.Service
}

// NewCreditHandlers creates a new instance of CreditHandlers.
func NewCreditHandlers(service *app.Service) *CreditHandlers {
	return &CreditHandlers{service: service}
}

// errorResponse is the structured error body returned by every endpoint. The
// retryable flag tells callers whether the failure is transient; available
// and required are populated only for insufficient-credit failures.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
	Available *int64 `json:"available,omitempty"`
	Required  *int64 `json:"required,omitempty"`
}

func (h *CreditHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (h *CreditHandlers) writeError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: code, Retryable: retryable})
}

// writeServiceError maps business and store errors onto HTTP statuses. Raw
// store errors never reach the caller.
func (h *CreditHandlers) writeServiceError(w http.ResponseWriter, err error) {
	var ic *app.InsufficientCreditError
	switch {
	case errors.As(err, &ic):
		h.writeJSON(w, http.StatusPaymentRequired, errorResponse{
			Error:     ic.Error(),
			Code:      "insufficient_credit",
			Available: &ic.Available,
			Required:  &ic.Required,
		})
	case errors.Is(err, app.ErrInvalidAmount):
		h.writeError(w, http.StatusBadRequest, "invalid_amount", err.Error(), false)
	case errors.Is(err, app.ErrInvalidCodeFormat):
		h.writeError(w, http.StatusBadRequest, "invalid_code_format", err.Error(), false)
	case errors.Is(err, app.ErrHierarchyViolation):
		h.writeError(w, http.StatusUnprocessableEntity, "hierarchy_violation", err.Error(), false)
	case errors.Is(err, app.ErrAccountSuspended):
		h.writeError(w, http.StatusUnprocessableEntity, "account_suspended", err.Error(), false)
	case errors.Is(err, app.ErrCampaignInactive):
		h.writeError(w, http.StatusUnprocessableEntity, "campaign_inactive", err.Error(), false)
	case errors.Is(err, app.ErrNoSupply):
		h.writeError(w, http.StatusConflict, "no_supply", err.Error(), false)
	case errors.Is(err, app.ErrAlreadyRedeemed):
		h.writeError(w, http.StatusConflict, "already_redeemed", err.Error(), false)
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error(), true)
	case errors.Is(err, app.ErrVendorUnavailable):
		h.writeError(w, http.StatusBadGateway, "vendor_unavailable", err.Error(), true)
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "account_not_found", "Credit account not found", false)
	case errors.Is(err, store.ErrCampaignNotFound):
		h.writeError(w, http.StatusNotFound, "campaign_not_found", "Campaign not found", false)
	case errors.Is(err, store.ErrPoolNotFound):
		h.writeError(w, http.StatusNotFound, "pool_not_found", "Inventory pool not found", false)
	case errors.Is(err, store.ErrRedemptionCodeNotFound):
		h.writeError(w, http.StatusNotFound, "code_not_found", "Redemption code not found", false)
	case errors.Is(err, store.ErrConcurrencyConflict):
		h.writeError(w, http.StatusServiceUnavailable, "concurrency_conflict", "Temporary conflict, please retry", true)
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred", false)
	}
}

func (h *CreditHandlers) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "Invalid "+name+" format", false)
		return uuid.Nil, false
	}
	return id, true
}

// AllocateHandler handles requests to move credit one level down the
// hierarchy. Admin only.
func (h *CreditHandlers) AllocateHandler(w http.ResponseWriter, r *http.Request) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Could not get subject from context", false)
		return
	}

	var payload struct {
		FromAccountID uuid.UUID        `json:"from_account_id"`
		ToOwnerType   domain.OwnerType `json:"to_owner_type"`
		ToOwnerID     uuid.UUID        `json:"to_owner_id"`
		Amount        int64            `json:"amount"`
		Notes         string           `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", false)
		return
	}

	result, err := h.service.Allocate(r.Context(), payload.FromAccountID, domain.AllocateCreditPayload{
		ToOwnerType: payload.ToOwnerType,
		ToOwnerID:   payload.ToOwnerID,
		Amount:      payload.Amount,
		Notes:       payload.Notes,
	}, subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// ProvisionHandler handles fulfillment requests from forms, call-center
// actions, and scheduled jobs.
func (h *CreditHandlers) ProvisionHandler(w http.ResponseWriter, r *http.Request) {
	var payload domain.ProvisionCardPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", false)
		return
	}
	if payload.CampaignID == uuid.Nil || payload.RecipientID == uuid.Nil || payload.BrandID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "campaign_id, brand_id and recipient_id are required", false)
		return
	}

	result, err := h.service.ProvisionCard(r.Context(), payload)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result)
}

// RedeemHandler is the public-facing redemption-form entry point: the raw
// code is normalized and format-checked before anything touches the store.
func (h *CreditHandlers) RedeemHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code         string    `json:"code"`
		RecipientID  uuid.UUID `json:"recipient_id"`
		BrandID      uuid.UUID `json:"brand_id"`
		Denomination int64     `json:"denomination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", false)
		return
	}

	result, err := h.service.RedeemCode(r.Context(), payload.Code, payload.RecipientID, payload.BrandID, payload.Denomination)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result)
}

// GetAccountHandler returns one credit account.
func (h *CreditHandlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetAccountByOwnerHandler resolves the account of a hierarchy entity.
func (h *CreditHandlers) GetAccountByOwnerHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.pathUUID(w, r, "ownerID")
	if !ok {
		return
	}
	ownerType := domain.OwnerType(chi.URLParam(r, "ownerType"))
	if !ownerType.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid_owner_type", "Unknown owner type", false)
		return
	}
	account, err := h.service.GetAccountByOwner(r.Context(), ownerType, ownerID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ListTransactionsHandler returns ledger history for an account.
func (h *CreditHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	opts := domain.TransactionListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	transactions, err := h.service.ListTransactions(r.Context(), accountID, opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// PurchaseCreditHandler records a settled credit top-up. Admin only.
func (h *CreditHandlers) PurchaseCreditHandler(w http.ResponseWriter, r *http.Request) {
	subject, _ := GetAuthSubject(r.Context())
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	var payload domain.PurchaseCreditPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", false)
		return
	}

	entry, balance, err := h.service.PurchaseCredit(r.Context(), accountID, payload, subject)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"transaction": entry,
		"balance":     balance,
	})
}

// UpdateAccountSettingsHandler applies admin changes to thresholds and
// auto-reload configuration.
func (h *CreditHandlers) UpdateAccountSettingsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.pathUUID(w, r, "accountID")
	if !ok {
		return
	}
	var update domain.AccountSettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", false)
		return
	}

	account, err := h.service.UpdateAccountSettings(r.Context(), accountID, update)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// CreatePoolHandler registers a new inventory pool. Admin only.
func (h *CreditHandlers) CreatePoolHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ClientOwnerID uuid.UUID `json:"client_owner_id"`
		BrandID       uuid.UUID `json:"brand_id"`
		Denomination  int64     `json:"denomination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", false)
		return
	}
	if payload.ClientOwnerID == uuid.Nil || payload.BrandID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "client_owner_id and brand_id are required", false)
		return
	}

	pool, err := h.service.CreatePool(r.Context(), payload.ClientOwnerID, payload.BrandID, payload.Denomination)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, pool)
}

// PoolStatusHandler returns a pool with live inventory counts.
func (h *CreditHandlers) PoolStatusHandler(w http.ResponseWriter, r *http.Request) {
	poolID, ok := h.pathUUID(w, r, "poolID")
	if !ok {
		return
	}
	status, err := h.service.GetPoolStatus(r.Context(), poolID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

// ImportInventoryHandler ingests a CSV body of card codes into a pool.
// Admin only.
func (h *CreditHandlers) ImportInventoryHandler(w http.ResponseWriter, r *http.Request) {
	poolID, ok := h.pathUUID(w, r, "poolID")
	if !ok {
		return
	}

	result, err := h.service.ImportInventory(r.Context(), poolID, r.Body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
