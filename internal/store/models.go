/*
Package store
File: models.go
Description: GORM models for the durable tables. Wire payloads are built
from these rows but live in the api package; nothing here leaks transport
concerns.
*/

package store

import "time"

// User is one registered account. Accounts are never destroyed.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Username     string    `gorm:"column:username;uniqueIndex;size:20;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

func (User) TableName() string { return "users" }

// Ship is the one-per-user durable ship row. Hull/shield maxima are
// reconciled against the tier formula on login (self-healing).
type Ship struct {
	UserID    int64   `gorm:"column:user_id;primaryKey"`
	PositionX float64 `gorm:"column:position_x;not null;default:0"`
	PositionY float64 `gorm:"column:position_y;not null;default:0"`
	VelocityX float64 `gorm:"column:velocity_x;not null;default:0"`
	VelocityY float64 `gorm:"column:velocity_y;not null;default:0"`
	Rotation  float64 `gorm:"column:rotation;not null;default:0"`

	HullHP    float64 `gorm:"column:hull_hp;not null;default:0"`
	HullMax   float64 `gorm:"column:hull_max;not null;default:0"`
	ShieldHP  float64 `gorm:"column:shield_hp;not null;default:0"`
	ShieldMax float64 `gorm:"column:shield_max;not null;default:0"`

	// NOT NULL with a default keeps the read path clear of NULL credits;
	// legacy rows that still carry NULL scan as zero via the pointerless
	// column default.
	Credits int64 `gorm:"column:credits;not null;default:0"`

	EngineTier     int `gorm:"column:engine_tier;not null;default:1"`
	WeaponTier     int `gorm:"column:weapon_tier;not null;default:1"`
	ShieldTier     int `gorm:"column:shield_tier;not null;default:1"`
	MiningTier     int `gorm:"column:mining_tier;not null;default:1"`
	CargoTier      int `gorm:"column:cargo_tier;not null;default:1"`
	RadarTier      int `gorm:"column:radar_tier;not null;default:1"`
	EnergyCoreTier int `gorm:"column:energy_core_tier;not null;default:1"`
	HullTier       int `gorm:"column:hull_tier;not null;default:1"`

	WeaponType  string `gorm:"column:weapon_type;not null;default:'laser'"`
	ShipColorID int    `gorm:"column:ship_color_id;not null;default:0"`
	ProfileID   int    `gorm:"column:profile_id;not null;default:0"`

	LastSectorX int `gorm:"column:last_sector_x;not null;default:0"`
	LastSectorY int `gorm:"column:last_sector_y;not null;default:0"`
}

func (Ship) TableName() string { return "ships" }

// InventoryItem is one (user, resource) stack. Composite key.
type InventoryItem struct {
	UserID       int64  `gorm:"column:user_id;primaryKey"`
	ResourceType string `gorm:"column:resource_type;primaryKey;size:32"`
	Quantity     int64  `gorm:"column:quantity;not null;default:0"`
}

func (InventoryItem) TableName() string { return "inventory" }

// Relic grants an ability by presence (e.g. WORMHOLE_GEM unlocks transit).
type Relic struct {
	UserID    int64  `gorm:"column:user_id;primaryKey"`
	RelicType string `gorm:"column:relic_type;primaryKey;size:32"`
}

func (Relic) TableName() string { return "relics" }

// MarketListing is a live sell order. Partial fills decrement Quantity;
// a zero-quantity listing is deleted inside the same transaction.
type MarketListing struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SellerID     int64     `gorm:"column:seller_id;index;not null"`
	SellerName   string    `gorm:"column:seller_name;not null"` // denormalized for display
	ResourceType string    `gorm:"column:resource_type;not null;size:32"`
	Quantity     int64     `gorm:"column:quantity;not null"`
	PricePerUnit int64     `gorm:"column:price_per_unit;not null"`
	ListedAt     time.Time `gorm:"column:listed_at;not null;autoCreateTime"`
}

func (MarketListing) TableName() string { return "market_listings" }

// Fleet groups up to four members under a leader.
type Fleet struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;not null;size:32"`
	LeaderID  int64     `gorm:"column:leader_id;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

func (Fleet) TableName() string { return "fleets" }

// FleetMember links one user to one fleet. The unique index on user_id
// enforces single-fleet membership at the schema level.
type FleetMember struct {
	FleetID  int64     `gorm:"column:fleet_id;primaryKey"`
	UserID   int64     `gorm:"column:user_id;primaryKey;uniqueIndex"`
	JoinedAt time.Time `gorm:"column:joined_at;not null;autoCreateTime"`
}

func (FleetMember) TableName() string { return "fleet_members" }
