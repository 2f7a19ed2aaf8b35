/*
Package store
File: market.go
Description:
    Marketplace transactions. Each operation is one SQLite transaction;
    when two clients race over the same listing the transaction order is
    authoritative and the loser sees "Listing not found" or
    "Insufficient quantity".
*/

package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ListItem moves qty units out of the seller's inventory into a new
// listing. Atomic: either both rows change or neither does.
func (s *Store) ListItem(ctx context.Context, sellerID int64, sellerName, resource string, qty, pricePerUnit int64) (*MarketListing, error) {
	if qty <= 0 || pricePerUnit <= 0 {
		return nil, ErrInsufficientQuantity
	}
	listing := &MarketListing{
		SellerID:     sellerID,
		SellerName:   sellerName,
		ResourceType: resource,
		Quantity:     qty,
		PricePerUnit: pricePerUnit,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := removeResourceTx(tx, sellerID, resource, qty); err != nil {
			return err
		}
		return tx.Create(listing).Error
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// BuyItem fills qty units from a listing: debit buyer credits, credit the
// seller, decrement (or delete) the listing and grow the buyer inventory,
// all in one transaction. cargoMax is the buyer's cap at their cargo tier.
func (s *Store) BuyItem(ctx context.Context, buyerID, listingID, qty, cargoMax int64) (*MarketListing, error) {
	if qty <= 0 {
		return nil, ErrInsufficientQuantity
	}
	var after *MarketListing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing MarketListing
		if err := tx.First(&listing, listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.SellerID == buyerID {
			return ErrListingNotFound // own listings are cancelled, not bought
		}
		if listing.Quantity < qty {
			return ErrInsufficientQuantity
		}
		total := listing.PricePerUnit * qty

		var buyer Ship
		if err := tx.First(&buyer, "user_id = ?", buyerID).Error; err != nil {
			return ErrShipNotFound
		}
		if buyer.Credits < total {
			return ErrInsufficientCredits
		}

		var carried int64
		if err := tx.Model(&InventoryItem{}).Where("user_id = ?", buyerID).
			Select("COALESCE(SUM(quantity), 0)").Scan(&carried).Error; err != nil {
			return err
		}
		if carried+qty > cargoMax {
			return ErrCargoFull
		}

		if err := tx.Model(&Ship{}).Where("user_id = ?", buyerID).
			Update("credits", gorm.Expr("credits - ?", total)).Error; err != nil {
			return err
		}
		if err := tx.Model(&Ship{}).Where("user_id = ?", listing.SellerID).
			Update("credits", gorm.Expr("credits + ?", total)).Error; err != nil {
			return err
		}
		if err := addResourceTx(tx, buyerID, listing.ResourceType, qty); err != nil {
			return err
		}

		if listing.Quantity == qty {
			if err := tx.Delete(&MarketListing{}, listing.ID).Error; err != nil {
				return err
			}
			listing.Quantity = 0
		} else {
			if err := tx.Model(&MarketListing{}).Where("id = ?", listing.ID).
				Update("quantity", gorm.Expr("quantity - ?", qty)).Error; err != nil {
				return err
			}
			listing.Quantity -= qty
		}
		after = &listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

// CancelListing returns the unsold quantity to the seller and removes the
// listing. Only the owner may cancel; anyone else sees "Listing not found".
func (s *Store) CancelListing(ctx context.Context, sellerID, listingID int64) (*MarketListing, error) {
	var cancelled *MarketListing
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing MarketListing
		if err := tx.First(&listing, listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return err
		}
		if listing.SellerID != sellerID {
			return ErrListingNotFound
		}
		if err := addResourceTx(tx, sellerID, listing.ResourceType, listing.Quantity); err != nil {
			return err
		}
		if err := tx.Delete(&MarketListing{}, listing.ID).Error; err != nil {
			return err
		}
		cancelled = &listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// Listings returns every live listing, newest first.
func (s *Store) Listings(ctx context.Context) ([]MarketListing, error) {
	var listings []MarketListing
	if err := s.db.WithContext(ctx).Order("listed_at DESC, id DESC").Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	return listings, nil
}

// ListingsBySeller returns one seller's live listings.
func (s *Store) ListingsBySeller(ctx context.Context, sellerID int64) ([]MarketListing, error) {
	var listings []MarketListing
	if err := s.db.WithContext(ctx).Where("seller_id = ?", sellerID).
		Order("listed_at DESC, id DESC").Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	return listings, nil
}
