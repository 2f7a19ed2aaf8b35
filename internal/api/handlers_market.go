/*
Package api
File: handlers_market.go
Description:
    Marketplace commands: thin wrappers over the store's transactional
    operations. Every mutation fans out a market:update so open market
    views refresh; the loser of a race over one listing gets the stable
    "Listing not found" / "Insufficient quantity" strings the store maps
    transaction outcomes to.
*/

package api

import (
	"context"
	"encoding/json"

	"github.com/everforgeworks/galaxies-deepspace/internal/store"
)

type listingView struct {
	ID           int64  `json:"id"`
	SellerID     int64  `json:"seller_id"`
	SellerName   string `json:"seller_name"`
	ResourceType string `json:"resource_type"`
	Quantity     int64  `json:"quantity"`
	PricePerUnit int64  `json:"price_per_unit"`
	ListedAt     int64  `json:"listed_at"`
}

func viewListing(l *store.MarketListing) listingView {
	return listingView{
		ID:           l.ID,
		SellerID:     l.SellerID,
		SellerName:   l.SellerName,
		ResourceType: l.ResourceType,
		Quantity:     l.Quantity,
		PricePerUnit: l.PricePerUnit,
		ListedAt:     l.ListedAt.UnixMilli(),
	}
}

func viewListings(ls []store.MarketListing) []listingView {
	out := make([]listingView, 0, len(ls))
	for i := range ls {
		out = append(out, viewListing(&ls[i]))
	}
	return out
}

func (r *Router) handleMarketList(c *Client, data json.RawMessage) {
	var in marketListPayload
	if !decode(r, c, data, OutMarketError, &in) {
		return
	}
	userID := c.UserID()
	ctx := context.Background()

	user, err := r.store.UserByID(ctx, userID)
	if err != nil {
		c.Enqueue(OutMarketError, errorPayload{Message: "Listing failed"})
		return
	}
	listing, err := r.store.ListItem(ctx, userID, user.Username, in.ResourceType, in.Quantity, in.PricePerUnit)
	if err != nil {
		c.Enqueue(OutMarketError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(OutMarketListed, viewListing(listing))
	r.hub.BroadcastAll(OutMarketUpdate, map[string]any{"action": "listed", "listing": viewListing(listing)})
}

func (r *Router) handleMarketBuy(c *Client, data json.RawMessage) {
	var in marketBuyPayload
	if !decode(r, c, data, OutMarketError, &in) {
		return
	}
	userID := c.UserID()
	ctx := context.Background()

	ship, err := r.store.ShipByUser(ctx, userID)
	if err != nil {
		c.Enqueue(OutMarketError, errorPayload{Message: "Purchase failed"})
		return
	}
	after, err := r.store.BuyItem(ctx, userID, in.ListingID, in.Quantity, r.bal.CargoMax(ship.CargoTier))
	if err != nil {
		c.Enqueue(OutMarketError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(OutMarketBought, map[string]any{
		"listing_id": after.ID,
		"resource":   after.ResourceType,
		"quantity":   in.Quantity,
		"remaining":  after.Quantity,
	})
	r.hub.BroadcastAll(OutMarketUpdate, map[string]any{"action": "sold", "listing": viewListing(after)})
}

func (r *Router) handleMarketCancel(c *Client, data json.RawMessage) {
	var in marketCancelPayload
	if !decode(r, c, data, OutMarketError, &in) {
		return
	}
	cancelled, err := r.store.CancelListing(context.Background(), c.UserID(), in.ListingID)
	if err != nil {
		c.Enqueue(OutMarketError, errorPayload{Message: err.Error()})
		return
	}
	c.Enqueue(OutMarketCancelled, map[string]any{
		"listing_id": cancelled.ID,
		"resource":   cancelled.ResourceType,
		"returned":   cancelled.Quantity,
	})
	r.hub.BroadcastAll(OutMarketUpdate, map[string]any{"action": "cancelled", "listing_id": cancelled.ID})
}

func (r *Router) handleMarketGetListings(c *Client, data json.RawMessage) {
	listings, err := r.store.Listings(context.Background())
	if err != nil {
		c.Enqueue(OutMarketError, errorPayload{Message: "Failed to load listings"})
		return
	}
	c.Enqueue(OutMarketListings, viewListings(listings))
}

func (r *Router) handleMarketGetMyListings(c *Client, data json.RawMessage) {
	listings, err := r.store.ListingsBySeller(context.Background(), c.UserID())
	if err != nil {
		c.Enqueue(OutMarketError, errorPayload{Message: "Failed to load listings"})
		return
	}
	c.Enqueue(OutMarketMyListings, viewListings(listings))
}
