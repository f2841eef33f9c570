package cardvendor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestPurchaseCardParsesResponse(t *testing.T) {
	brandID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cards/purchase" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "ref-1" {
			t.Errorf("expected idempotency key ref-1, got %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"vnd_123","status":"issued","attributes":{"code":"ABCD-1234","secondary_code":"9876","cost":2500}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	card, err := client.PurchaseCard(context.Background(), brandID, 2500, "ref-1")
	if err != nil {
		t.Fatalf("expected purchase to succeed, got %v", err)
	}
	if card.VendorRef != "vnd_123" {
		t.Errorf("expected vendor ref vnd_123, got %s", card.VendorRef)
	}
	if card.Code != "ABCD-1234" {
		t.Errorf("expected code ABCD-1234, got %s", card.Code)
	}
	if card.SecondaryCode == nil || *card.SecondaryCode != "9876" {
		t.Errorf("expected secondary code 9876, got %v", card.SecondaryCode)
	}
	if card.Cost != 2500 {
		t.Errorf("expected cost 2500, got %d", card.Cost)
	}
}

func TestPurchaseCardMapsOutOfStock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"errors":[{"code":"out_of_stock","detail":"no supply for this brand"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.PurchaseCard(context.Background(), uuid.New(), 2500, "ref-2")
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestPurchaseCardBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	brandID := uuid.New()
	for i := 0; i < 5; i++ {
		_, err := client.PurchaseCard(context.Background(), brandID, 2500, "ref-3")
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected ErrUnavailable, got %v", i, err)
		}
	}

	// The breaker has tripped: further calls are shed without reaching the
	// vendor at all.
	_, err := client.PurchaseCard(context.Background(), brandID, 2500, "ref-3")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from open breaker, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits != 5 {
		t.Errorf("expected vendor to see 5 requests before the breaker opened, got %d", hits)
	}
}
