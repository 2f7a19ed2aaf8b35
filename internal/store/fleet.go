/*
Package store
File: fleet.go
Description: Fleet membership tables. Chat between fleet members is an
ephemeral broadcast handled by the api layer; nothing said in a fleet is
persisted here.
*/

package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// FleetInfo is a fleet row joined with its member list.
type FleetInfo struct {
	Fleet   Fleet
	Members []FleetMemberInfo
}

// FleetMemberInfo resolves the member's username for display.
type FleetMemberInfo struct {
	UserID   int64
	Username string
}

// CreateFleet creates a fleet with the leader as its first member. Fails if
// the leader already belongs to a fleet.
func (s *Store) CreateFleet(ctx context.Context, name string, leaderID int64) (*Fleet, error) {
	fleet := &Fleet{Name: name, LeaderID: leaderID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&FleetMember{}).Where("user_id = ?", leaderID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyInFleet
		}
		if err := tx.Create(fleet).Error; err != nil {
			return err
		}
		return tx.Create(&FleetMember{FleetID: fleet.ID, UserID: leaderID}).Error
	})
	if err != nil {
		return nil, err
	}
	return fleet, nil
}

// AddFleetMember joins a user to a fleet, enforcing the size cap and
// single-membership.
func (s *Store) AddFleetMember(ctx context.Context, fleetID, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var fleet Fleet
		if err := tx.First(&fleet, fleetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotInFleet
			}
			return err
		}
		var existing int64
		if err := tx.Model(&FleetMember{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyInFleet
		}
		var size int64
		if err := tx.Model(&FleetMember{}).Where("fleet_id = ?", fleetID).Count(&size).Error; err != nil {
			return err
		}
		if size >= MaxFleetSize {
			return ErrFleetFull
		}
		return tx.Create(&FleetMember{FleetID: fleetID, UserID: userID}).Error
	})
}

// RemoveFleetMember drops a member. When the leader leaves, leadership
// passes to the longest-standing member; an emptied fleet is deleted.
func (s *Store) RemoveFleetMember(ctx context.Context, fleetID, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&FleetMember{}, "fleet_id = ? AND user_id = ?", fleetID, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotInFleet
		}

		var remaining []FleetMember
		if err := tx.Where("fleet_id = ?", fleetID).Order("joined_at, user_id").Find(&remaining).Error; err != nil {
			return err
		}
		if len(remaining) == 0 {
			return tx.Delete(&Fleet{}, fleetID).Error
		}

		var fleet Fleet
		if err := tx.First(&fleet, fleetID).Error; err != nil {
			return err
		}
		if fleet.LeaderID == userID {
			return tx.Model(&Fleet{}).Where("id = ?", fleetID).
				Update("leader_id", remaining[0].UserID).Error
		}
		return nil
	})
}

// FleetOf returns the fleet a user belongs to, or ErrNotInFleet.
func (s *Store) FleetOf(ctx context.Context, userID int64) (*FleetInfo, error) {
	var member FleetMember
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInFleet
		}
		return nil, err
	}
	return s.FleetByID(ctx, member.FleetID)
}

// FleetByID loads a fleet with resolved member names.
func (s *Store) FleetByID(ctx context.Context, fleetID int64) (*FleetInfo, error) {
	var fleet Fleet
	if err := s.db.WithContext(ctx).First(&fleet, fleetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotInFleet
		}
		return nil, err
	}
	var members []FleetMember
	if err := s.db.WithContext(ctx).Where("fleet_id = ?", fleetID).
		Order("joined_at, user_id").Find(&members).Error; err != nil {
		return nil, err
	}
	info := &FleetInfo{Fleet: fleet}
	for _, m := range members {
		var u User
		if err := s.db.WithContext(ctx).First(&u, m.UserID).Error; err != nil {
			continue
		}
		info.Members = append(info.Members, FleetMemberInfo{UserID: m.UserID, Username: u.Username})
	}
	return info, nil
}
