/*
Package store
File: store.go
Description:
    Durable state behind a single Store value: users, ships, inventory,
    relics, market listings and fleets over SQLite (WAL mode). Every
    multi-row mutation runs in one transaction; SQLite serializes writers,
    which is the ordering authority the command layer relies on when two
    players race over the same listing.
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Stable user-visible failures. These strings surface in client toasts and
// must not drift.
var (
	ErrUsernameTaken        = errors.New("Username already taken")
	ErrUserNotFound         = errors.New("Invalid credentials")
	ErrShipNotFound         = errors.New("Ship not found")
	ErrInsufficientCredits  = errors.New("Insufficient credits")
	ErrInsufficientQuantity = errors.New("Insufficient quantity")
	ErrListingNotFound      = errors.New("Listing not found")
	ErrCargoFull            = errors.New("Cargo hold full")
	ErrFleetFull            = errors.New("Fleet is full")
	ErrAlreadyInFleet       = errors.New("Already in a fleet")
	ErrNotInFleet           = errors.New("Not in a fleet")
	ErrUpgradeMaxed         = errors.New("Component already at maximum tier")
)

// MaxFleetSize caps fleet membership including the leader.
const MaxFleetSize = 4

type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return open(path + "?_journal_mode=WAL&_busy_timeout=5000")
}

// OpenMemory opens an in-memory database, used by tests.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&User{},
		&Ship{},
		&InventoryItem{},
		&Relic{},
		&MarketListing{},
		&Fleet{},
		&FleetMember{},
	)
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --- Users ---

// CreateUser inserts a user row; the username must be free.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{Username: username, PasswordHash: passwordHash}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		return tx.Create(u).Error
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UserByUsername looks up one user. Not-found maps to the generic
// credentials error so the auth layer cannot leak account existence.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

// --- Ships ---

func (s *Store) CreateShip(ctx context.Context, ship *Ship) error {
	if err := s.db.WithContext(ctx).Create(ship).Error; err != nil {
		return fmt.Errorf("create ship: %w", err)
	}
	return nil
}

func (s *Store) ShipByUser(ctx context.Context, userID int64) (*Ship, error) {
	var ship Ship
	if err := s.db.WithContext(ctx).First(&ship, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShipNotFound
		}
		return nil, fmt.Errorf("find ship: %w", err)
	}
	return &ship, nil
}

// ReconcileShip heals hull/shield maxima that have drifted from the tier
// formula, clamping current values into range. Runs on every login.
func (s *Store) ReconcileShip(ctx context.Context, ship *Ship, hullMax, shieldMax float64) error {
	changed := ship.HullMax != hullMax || ship.ShieldMax != shieldMax
	ship.HullMax = hullMax
	ship.ShieldMax = shieldMax
	if ship.HullHP > hullMax {
		ship.HullHP = hullMax
		changed = true
	}
	if ship.ShieldHP > shieldMax {
		ship.ShieldHP = shieldMax
		changed = true
	}
	if !changed {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Ship{}).Where("user_id = ?", ship.UserID).
		Updates(map[string]any{
			"hull_max":   ship.HullMax,
			"shield_max": ship.ShieldMax,
			"hull_hp":    ship.HullHP,
			"shield_hp":  ship.ShieldHP,
		}).Error
}

// SaveShipState flushes the volatile ship fields the simulation owns.
// Credits deliberately excluded; they only move inside store transactions.
func (s *Store) SaveShipState(ctx context.Context, userID int64, x, y, vx, vy, rot, hull, shield float64, sectorX, sectorY int) error {
	return s.db.WithContext(ctx).Model(&Ship{}).Where("user_id = ?", userID).
		Updates(map[string]any{
			"position_x":    x,
			"position_y":    y,
			"velocity_x":    vx,
			"velocity_y":    vy,
			"rotation":      rot,
			"hull_hp":       hull,
			"shield_hp":     shield,
			"last_sector_x": sectorX,
			"last_sector_y": sectorY,
		}).Error
}

// SetCosmetics updates the cosmetic columns; nil leaves a field untouched.
func (s *Store) SetCosmetics(ctx context.Context, userID int64, colorID, profileID *int) error {
	updates := map[string]any{}
	if colorID != nil {
		updates["ship_color_id"] = *colorID
	}
	if profileID != nil {
		updates["profile_id"] = *profileID
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Ship{}).Where("user_id = ?", userID).Updates(updates).Error
}

// AdjustCredits moves credits by delta inside one transaction, refusing to
// take the balance negative.
func (s *Store) AdjustCredits(ctx context.Context, userID int64, delta int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ship Ship
		if err := tx.First(&ship, "user_id = ?", userID).Error; err != nil {
			return ErrShipNotFound
		}
		if ship.Credits+delta < 0 {
			return ErrInsufficientCredits
		}
		return tx.Model(&Ship{}).Where("user_id = ?", userID).
			Update("credits", gorm.Expr("credits + ?", delta)).Error
	})
}

// --- Inventory ---

func (s *Store) Inventory(ctx context.Context, userID int64) ([]InventoryItem, error) {
	var items []InventoryItem
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND quantity > 0", userID).
		Order("resource_type").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	return items, nil
}

// InventoryTotal sums the stacks for the cargo-cap checks.
func (s *Store) InventoryTotal(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&InventoryItem{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}

// AddResourceClipped credits up to qty units, clipped to the remaining cargo
// room, and returns how many were actually added. Adding zero is not an
// error; the mining path treats a full hold at completion as yield lost.
func (s *Store) AddResourceClipped(ctx context.Context, userID int64, resource string, qty, cargoMax int64) (int64, error) {
	var added int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var total int64
		if err := tx.Model(&InventoryItem{}).Where("user_id = ?", userID).
			Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error; err != nil {
			return err
		}
		room := cargoMax - total
		if room <= 0 {
			added = 0
			return nil
		}
		added = qty
		if added > room {
			added = room
		}
		return addResourceTx(tx, userID, resource, added)
	})
	return added, err
}

// RemoveResource debits exactly qty units or fails.
func (s *Store) RemoveResource(ctx context.Context, userID int64, resource string, qty int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return removeResourceTx(tx, userID, resource, qty)
	})
}

func addResourceTx(tx *gorm.DB, userID int64, resource string, qty int64) error {
	var item InventoryItem
	err := tx.Where("user_id = ? AND resource_type = ?", userID, resource).First(&item).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&InventoryItem{UserID: userID, ResourceType: resource, Quantity: qty}).Error
	case err != nil:
		return err
	default:
		return tx.Model(&InventoryItem{}).
			Where("user_id = ? AND resource_type = ?", userID, resource).
			Update("quantity", gorm.Expr("quantity + ?", qty)).Error
	}
}

func removeResourceTx(tx *gorm.DB, userID int64, resource string, qty int64) error {
	var item InventoryItem
	if err := tx.Where("user_id = ? AND resource_type = ?", userID, resource).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientQuantity
		}
		return err
	}
	if item.Quantity < qty {
		return ErrInsufficientQuantity
	}
	if item.Quantity == qty {
		return tx.Delete(&InventoryItem{}, "user_id = ? AND resource_type = ?", userID, resource).Error
	}
	return tx.Model(&InventoryItem{}).
		Where("user_id = ? AND resource_type = ?", userID, resource).
		Update("quantity", gorm.Expr("quantity - ?", qty)).Error
}

// --- Relics ---

func (s *Store) GrantRelic(ctx context.Context, userID int64, relicType string) error {
	relic := &Relic{UserID: userID, RelicType: relicType}
	err := s.db.WithContext(ctx).Create(relic).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil // presence is all that matters
	}
	return err
}

func (s *Store) HasRelic(ctx context.Context, userID int64, relicType string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Relic{}).
		Where("user_id = ? AND relic_type = ?", userID, relicType).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) Relics(ctx context.Context, userID int64) ([]string, error) {
	var relics []Relic
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("relic_type").Find(&relics).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(relics))
	for _, r := range relics {
		out = append(out, r.RelicType)
	}
	return out, nil
}

// --- Upgrades ---

var tierColumns = map[string]string{
	"engine":     "engine_tier",
	"weapon":     "weapon_tier",
	"shield":     "shield_tier",
	"mining":     "mining_tier",
	"cargo":      "cargo_tier",
	"radar":      "radar_tier",
	"energyCore": "energy_core_tier",
	"hull":       "hull_tier",
}

// TierColumn maps a component name to its ships column, reporting whether
// the component exists.
func TierColumn(component string) (string, bool) {
	col, ok := tierColumns[component]
	return col, ok
}

// ApplyUpgrade atomically verifies and debits the credit and resource costs,
// bumps the component tier, and (for hull/shield) writes the recomputed
// maxima. newHullMax/newShieldMax of zero leave the maxima untouched.
func (s *Store) ApplyUpgrade(ctx context.Context, userID int64, component string, targetTier int, credits int64, resources map[string]int64, newHullMax, newShieldMax float64) error {
	col, ok := tierColumns[component]
	if !ok {
		return fmt.Errorf("unknown component %q", component)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ship Ship
		if err := tx.First(&ship, "user_id = ?", userID).Error; err != nil {
			return ErrShipNotFound
		}
		if ship.Credits < credits {
			return ErrInsufficientCredits
		}
		for res, qty := range resources {
			if err := removeResourceTx(tx, userID, res, qty); err != nil {
				return err
			}
		}
		updates := map[string]any{
			col:       targetTier,
			"credits": gorm.Expr("credits - ?", credits),
		}
		if newHullMax > 0 {
			updates["hull_max"] = newHullMax
			updates["hull_hp"] = newHullMax // an upgrade tops the pool up
		}
		if newShieldMax > 0 {
			updates["shield_max"] = newShieldMax
			updates["shield_hp"] = newShieldMax
		}
		return tx.Model(&Ship{}).Where("user_id = ?", userID).Updates(updates).Error
	})
}
