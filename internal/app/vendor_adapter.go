package app

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rewardloop/credit-service/pkg/cardvendor"
)

// vendorClientAdapter bridges the HTTP vendor client into the CardVendor
// interface, translating transport errors into business errors.
type vendorClientAdapter struct {
	client *cardvendor.Client
}

// NewVendorAdapter wraps a card vendor client for use by the waterfall.
func NewVendorAdapter(client *cardvendor.Client) CardVendor {
	return &vendorClientAdapter{client: client}
}

func (a *vendorClientAdapter) PurchaseCard(ctx context.Context, brandID uuid.UUID, denomination int64, reference string) (*VendorCard, error) {
	card, err := a.client.PurchaseCard(ctx, brandID, denomination, reference)
	if err != nil {
		switch {
		case errors.Is(err, cardvendor.ErrOutOfStock):
			return nil, ErrNoSupply
		case errors.Is(err, cardvendor.ErrUnavailable):
			return nil, ErrVendorUnavailable
		default:
			return nil, err
		}
	}
	return &VendorCard{
		Code:          card.Code,
		SecondaryCode: card.SecondaryCode,
		Cost:          card.Cost,
	}, nil
}
