/**
 * @description
 * This package provides a client for the gift-card vendor API used by the
 * on-demand purchase fallback. It encapsulates authenticated HTTP requests,
 * request body construction, response parsing, and a circuit breaker that
 * sheds load when the vendor is failing.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/sony/gobreaker: Circuit breaker around vendor calls.
 */
package cardvendor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

var (
	// ErrOutOfStock is returned when the vendor has no supply for the
	// requested brand and denomination.
	ErrOutOfStock = errors.New("vendor out of stock")

	// ErrUnavailable is returned when the vendor cannot be reached or the
	// circuit breaker is open.
	ErrUnavailable = errors.New("vendor unavailable")
)

// Client is a client for the card vendor API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new card vendor API client with its circuit breaker.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "card-vendor",
			MaxRequests: 3,                // half-open: allow 3 requests
			Interval:    30 * time.Second, // closed: reset counters every 30s
			Timeout:     10 * time.Second, // open -> half-open after 10s
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
		}),
	}
}

// PurchaseCardRequest is the payload for the vendor's card purchase endpoint.
type PurchaseCardRequest struct {
	BrandID      uuid.UUID `json:"brand_id"`
	Denomination int64     `json:"denomination"`
	Reference    string    `json:"reference"`
}

// PurchaseCardResponse is the vendor's response for a successful purchase.
type PurchaseCardResponse struct {
	Data struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		Attributes struct {
			Code          string  `json:"code"`
			SecondaryCode *string `json:"secondary_code"`
			Cost          int64   `json:"cost"`
		} `json:"attributes"`
	} `json:"data"`
}

type vendorError struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// PurchasedCard is the parsed result of an on-demand purchase.
type PurchasedCard struct {
	VendorRef     string
	Code          string
	SecondaryCode *string
	Cost          int64
}

// PurchaseCard buys one card on demand. The reference is an idempotency key:
// the vendor returns the original card when a reference is replayed, so a
// retried fallback never double-bills. An out-of-stock reply maps to
// ErrOutOfStock; transport failures and open-breaker rejections map to
// ErrUnavailable.
func (c *Client) PurchaseCard(ctx context.Context, brandID uuid.UUID, denomination int64, reference string) (*PurchasedCard, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.purchaseCard(ctx, brandID, denomination, reference)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Printf("level=warn component=cardvendor msg=\"circuit breaker rejected purchase\" brand_id=%s err=%v", brandID, err)
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return result.(*PurchasedCard), nil
}

func (c *Client) purchaseCard(ctx context.Context, brandID uuid.UUID, denomination int64, reference string) (*PurchasedCard, error) {
	reqBody := PurchaseCardRequest{
		BrandID:      brandID,
		Denomination: denomination,
		Reference:    reference,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal purchase request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/cards/purchase", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Idempotency-Key", reference)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vendor response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var parsed PurchaseCardResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse vendor response: %w", err)
		}
		return &PurchasedCard{
			VendorRef:     parsed.Data.ID,
			Code:          parsed.Data.Attributes.Code,
			SecondaryCode: parsed.Data.Attributes.SecondaryCode,
			Cost:          parsed.Data.Attributes.Cost,
		}, nil

	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		var ve vendorError
		if err := json.Unmarshal(body, &ve); err == nil {
			for _, e := range ve.Errors {
				if e.Code == "out_of_stock" {
					return nil, ErrOutOfStock
				}
			}
		}
		return nil, fmt.Errorf("vendor rejected purchase: status %d body %s", resp.StatusCode, string(body))

	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: vendor returned status %d", ErrUnavailable, resp.StatusCode)

	default:
		return nil, fmt.Errorf("vendor returned unexpected status %d: %s", resp.StatusCode, string(body))
	}
}
