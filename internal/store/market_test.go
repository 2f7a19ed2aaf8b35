/*
Package store
File: market_test.go
Description: Marketplace transaction tests: atomic fills, partial buys,
cancellation and value conservation.
*/

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListItemMovesStockOutOfInventory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := seedPilot(t, s, "seller", 0)
	_, err := s.AddResourceClipped(ctx, seller.ID, "IRON", 10, 100)
	require.NoError(t, err)

	listing, err := s.ListItem(ctx, seller.ID, "seller", "IRON", 10, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(10), listing.Quantity)
	assert.Equal(t, int64(3), listing.PricePerUnit)

	total, err := s.InventoryTotal(ctx, seller.ID)
	require.NoError(t, err)
	assert.Zero(t, total)

	// Listing more than the stack rolls back entirely.
	_, err = s.ListItem(ctx, seller.ID, "seller", "IRON", 1, 1)
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
}

func TestPartialBuyAndExhaustedCredits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := seedPilot(t, s, "seller", 0)
	buyer := seedPilot(t, s, "buyer", 15)

	_, err := s.AddResourceClipped(ctx, seller.ID, "IRON", 10, 100)
	require.NoError(t, err)
	listing, err := s.ListItem(ctx, seller.ID, "seller", "IRON", 10, 3)
	require.NoError(t, err)

	// 5 units at 3 credits each exactly drains the buyer.
	after, err := s.BuyItem(ctx, buyer.ID, listing.ID, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(5), after.Quantity)

	buyerShip, err := s.ShipByUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Zero(t, buyerShip.Credits)

	sellerShip, err := s.ShipByUser(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), sellerShip.Credits)

	total, err := s.InventoryTotal(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	// The second identical buy fails on credits and changes nothing.
	_, err = s.BuyItem(ctx, buyer.ID, listing.ID, 5, 100)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	listings, err := s.Listings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, int64(5), listings[0].Quantity)
}

func TestBuyConsumesListingWhenFilled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := seedPilot(t, s, "seller", 0)
	buyer := seedPilot(t, s, "buyer", 1000)

	_, err := s.AddResourceClipped(ctx, seller.ID, "CRYSTAL", 4, 100)
	require.NoError(t, err)
	listing, err := s.ListItem(ctx, seller.ID, "seller", "CRYSTAL", 4, 10)
	require.NoError(t, err)

	after, err := s.BuyItem(ctx, buyer.ID, listing.ID, 4, 100)
	require.NoError(t, err)
	assert.Zero(t, after.Quantity)

	listings, err := s.Listings(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings)

	_, err = s.BuyItem(ctx, buyer.ID, listing.ID, 1, 100)
	assert.ErrorIs(t, err, ErrListingNotFound)
}

func TestBuyRejectsOwnListingAndOverfill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := seedPilot(t, s, "seller", 1000)
	buyer := seedPilot(t, s, "buyer", 1000)

	_, err := s.AddResourceClipped(ctx, seller.ID, "IRON", 10, 100)
	require.NoError(t, err)
	listing, err := s.ListItem(ctx, seller.ID, "seller", "IRON", 10, 1)
	require.NoError(t, err)

	_, err = s.BuyItem(ctx, seller.ID, listing.ID, 1, 100)
	assert.ErrorIs(t, err, ErrListingNotFound)

	_, err = s.BuyItem(ctx, buyer.ID, listing.ID, 11, 100)
	assert.ErrorIs(t, err, ErrInsufficientQuantity)
}

func TestBuyRespectsBuyerCargoCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := seedPilot(t, s, "seller", 0)
	buyer := seedPilot(t, s, "buyer", 1000)

	_, err := s.AddResourceClipped(ctx, seller.ID, "IRON", 10, 100)
	require.NoError(t, err)
	listing, err := s.ListItem(ctx, seller.ID, "seller", "IRON", 10, 1)
	require.NoError(t, err)

	_, err = s.AddResourceClipped(ctx, buyer.ID, "CARBON", 95, 100)
	require.NoError(t, err)

	_, err = s.BuyItem(ctx, buyer.ID, listing.ID, 6, 100)
	assert.ErrorIs(t, err, ErrCargoFull)

	// The refused buy moved nothing.
	buyerShip, err := s.ShipByUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), buyerShip.Credits)

	_, err = s.BuyItem(ctx, buyer.ID, listing.ID, 5, 100)
	require.NoError(t, err)
}

func TestCancelListingReturnsUnsoldStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := seedPilot(t, s, "seller", 0)
	buyer := seedPilot(t, s, "buyer", 1000)
	stranger := seedPilot(t, s, "stranger", 0)

	_, err := s.AddResourceClipped(ctx, seller.ID, "IRON", 10, 100)
	require.NoError(t, err)
	listing, err := s.ListItem(ctx, seller.ID, "seller", "IRON", 10, 2)
	require.NoError(t, err)

	_, err = s.BuyItem(ctx, buyer.ID, listing.ID, 3, 100)
	require.NoError(t, err)

	// Only the owner can cancel; anyone else sees not-found.
	_, err = s.CancelListing(ctx, stranger.ID, listing.ID)
	assert.ErrorIs(t, err, ErrListingNotFound)

	cancelled, err := s.CancelListing(ctx, seller.ID, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cancelled.Quantity)

	total, err := s.InventoryTotal(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)

	listings, err := s.ListingsBySeller(ctx, seller.ID)
	require.NoError(t, err)
	assert.Empty(t, listings)
}

// TestMarketConservation drives a run of fills and cancels and checks that
// no credits or units were created or destroyed along the way.
func TestMarketConservation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedPilot(t, s, "a", 200)
	b := seedPilot(t, s, "b", 200)

	_, err := s.AddResourceClipped(ctx, a.ID, "TITANIUM", 40, 600)
	require.NoError(t, err)

	listing, err := s.ListItem(ctx, a.ID, "a", "TITANIUM", 30, 4)
	require.NoError(t, err)
	_, err = s.BuyItem(ctx, b.ID, listing.ID, 10, 600)
	require.NoError(t, err)
	_, err = s.BuyItem(ctx, b.ID, listing.ID, 15, 600)
	require.NoError(t, err)
	_, err = s.CancelListing(ctx, a.ID, listing.ID)
	require.NoError(t, err)

	shipA, err := s.ShipByUser(ctx, a.ID)
	require.NoError(t, err)
	shipB, err := s.ShipByUser(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), shipA.Credits+shipB.Credits)

	totalA, err := s.InventoryTotal(ctx, a.ID)
	require.NoError(t, err)
	totalB, err := s.InventoryTotal(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), totalA+totalB)

	listings, err := s.Listings(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings)
}
