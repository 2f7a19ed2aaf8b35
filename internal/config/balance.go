/*
Package config
File: balance.go
Description:
    The game balance sheet, loaded from universe.yaml. Tier curves follow
    base * multiplier^(tier-1) except where an explicit table overrides the
    curve (cargo capacity, energy core, upgrade costs). A handful of scalars
    can be overridden from the environment so operators can tune a live
    server without editing the YAML.
*/

package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	TierMin = 1
	TierMax = 5
)

// GameBalance stores the global tuning scalars.
type GameBalance struct {
	TierMultiplier       float64 `yaml:"tier_multiplier"`
	ShieldTierMultiplier float64 `yaml:"shield_tier_multiplier"`
	StartingCredits      int64   `yaml:"starting_credits"`
	DefaultHullHP        float64 `yaml:"default_hull_hp"`
	DefaultShieldHP      float64 `yaml:"default_shield_hp"`
	BaseSpeed            float64 `yaml:"base_speed"`
	BaseRadarRange       float64 `yaml:"base_radar_range"`
	BaseMiningTimeMS     int     `yaml:"base_mining_time_ms"`
	BaseMiningYield      int     `yaml:"base_mining_yield"`
	BaseWeaponDamage     float64 `yaml:"base_weapon_damage"`
	BaseWeaponCooldownMS int     `yaml:"base_weapon_cooldown_ms"`
	BaseProjectileSpeed  float64 `yaml:"base_projectile_speed"`
	ProjectileLifeMS     int     `yaml:"projectile_life_ms"`
	ShieldRegenPerSec    float64 `yaml:"shield_regen_per_sec"`
	ShieldRegenDelayMS   int     `yaml:"shield_regen_delay_ms"`
	Drag                 float64 `yaml:"drag"`
	StarGravity          float64 `yaml:"star_gravity"`
	StarDamagePerSec     float64 `yaml:"star_damage_per_sec"`
	RespawnDelayMS       int     `yaml:"respawn_delay_ms"`
	InvulnerabilityMS    int     `yaml:"invulnerability_ms"`
	LootCollectMS        int     `yaml:"loot_collect_ms"`
	WreckageDecayMS      int     `yaml:"wreckage_decay_ms"`
	BoostMultiplier      float64 `yaml:"boost_multiplier"`
}

// WorldTuning drives the procedural generator.
type WorldTuning struct {
	SectorSize          float64 `yaml:"sector_size"`
	StarSizeMax         float64 `yaml:"star_size_max"`
	StarChance          float64 `yaml:"star_chance"`
	StarOriginExclusion int     `yaml:"star_origin_exclusion"`
	WormholeChance      float64 `yaml:"wormhole_chance"`
	StationChance       float64 `yaml:"station_chance"`
	AsteroidsMin        int     `yaml:"asteroids_min"`
	AsteroidsMax        int     `yaml:"asteroids_max"`
	PlanetsMax          int     `yaml:"planets_max"`
}

// WormholeTuning covers the two-phase transit protocol.
type WormholeTuning struct {
	Range              float64 `yaml:"range"`
	ExitOffset         float64 `yaml:"exit_offset"`
	SelectionTimeoutMS int     `yaml:"selection_timeout_ms"`
	TransitDurationMS  int     `yaml:"transit_duration_ms"`
	MaxDestinations    int     `yaml:"max_destinations"`
	SearchRings        int     `yaml:"search_rings"`
}

// EnergyCoreTable holds the per-tier tables that do not follow the curve.
type EnergyCoreTable struct {
	CooldownReduction []float64 `yaml:"cooldown_reduction"`
	ShieldRegenBonus  []float64 `yaml:"shield_regen_bonus"`
	BoostDurationMS   []int     `yaml:"boost_duration_ms"`
	BoostCooldownMS   []int     `yaml:"boost_cooldown_ms"`
}

// UpgradeCost is the price of buying one tier of one component.
type UpgradeCost struct {
	Tier      int              `yaml:"tier"`
	Credits   int64            `yaml:"credits"`
	Resources map[string]int64 `yaml:"resources"`
}

// FactionConfig tunes one NPC faction.
type FactionConfig struct {
	Name           string  `yaml:"name"`
	ShipType       string  `yaml:"ship_type"`
	Hull           float64 `yaml:"hull"`
	Shield         float64 `yaml:"shield"`
	WeaponTier     int     `yaml:"weapon_tier"`
	Speed          float64 `yaml:"speed"`
	AggroRange     float64 `yaml:"aggro_range"`
	FleeHullRatio  float64 `yaml:"flee_hull_ratio"`
	FireCooldownMS int     `yaml:"fire_cooldown_ms"`
	SpawnChance    float64 `yaml:"spawn_chance"`
	MaxPerSector   int     `yaml:"max_per_sector"`
	CreditsMin     int64   `yaml:"credits_min"`
	CreditsMax     int64   `yaml:"credits_max"`
}

// Balance is the full parsed universe.yaml.
type Balance struct {
	Game                GameBalance              `yaml:"game_balance"`
	World               WorldTuning              `yaml:"world"`
	Wormhole            WormholeTuning           `yaml:"wormhole"`
	CargoCapacity       []int64                  `yaml:"cargo_capacity"`
	EnergyCore          EnergyCoreTable          `yaml:"energy_core"`
	UpgradeRequirements map[string][]UpgradeCost `yaml:"upgrade_requirements"`
	NPCFactions         []FactionConfig          `yaml:"npc_factions"`
}

// LoadBalance reads and validates the balance file, then applies any
// environment overrides for the scalar knobs.
func LoadBalance(path string) (*Balance, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read balance file: %w", err)
	}
	var b Balance
	if err := yaml.Unmarshal(f, &b); err != nil {
		return nil, fmt.Errorf("parse balance file: %w", err)
	}
	b.applyEnvOverrides()
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Balance) applyEnvOverrides() {
	overrideFloat("TIER_MULTIPLIER", &b.Game.TierMultiplier)
	overrideFloat("SHIELD_TIER_MULTIPLIER", &b.Game.ShieldTierMultiplier)
	overrideFloat("DEFAULT_HULL_HP", &b.Game.DefaultHullHP)
	overrideFloat("DEFAULT_SHIELD_HP", &b.Game.DefaultShieldHP)
	overrideFloat("BASE_SPEED", &b.Game.BaseSpeed)
	overrideFloat("BASE_RADAR_RANGE", &b.Game.BaseRadarRange)
	overrideInt("BASE_MINING_TIME", &b.Game.BaseMiningTimeMS)
	overrideInt("BASE_MINING_YIELD", &b.Game.BaseMiningYield)
	overrideFloat("SECTOR_SIZE", &b.World.SectorSize)
	overrideFloat("STAR_SIZE_MAX", &b.World.StarSizeMax)
}

func overrideFloat(key string, dst *float64) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			*dst = v
		}
	}
}

func overrideInt(key string, dst *int) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*dst = v
		}
	}
}

func (b *Balance) validate() error {
	if b.Game.TierMultiplier <= 1 {
		return fmt.Errorf("tier_multiplier must exceed 1, got %v", b.Game.TierMultiplier)
	}
	if len(b.CargoCapacity) != TierMax {
		return fmt.Errorf("cargo_capacity needs %d entries, got %d", TierMax, len(b.CargoCapacity))
	}
	for _, tbl := range [][]int{b.EnergyCore.BoostDurationMS, b.EnergyCore.BoostCooldownMS} {
		if len(tbl) != TierMax {
			return fmt.Errorf("energy_core tables need %d entries", TierMax)
		}
	}
	if len(b.EnergyCore.CooldownReduction) != TierMax || len(b.EnergyCore.ShieldRegenBonus) != TierMax {
		return fmt.Errorf("energy_core tables need %d entries", TierMax)
	}
	if b.World.SectorSize <= 0 {
		return fmt.Errorf("sector_size must be positive")
	}
	for comp, costs := range b.UpgradeRequirements {
		for _, c := range costs {
			if c.Tier < 2 || c.Tier > TierMax {
				return fmt.Errorf("upgrade tier %d for %s out of range", c.Tier, comp)
			}
		}
	}
	return nil
}

// Tiered applies the uniform scaling curve.
func (b *Balance) Tiered(base float64, tier int) float64 {
	return base * math.Pow(b.Game.TierMultiplier, float64(tier-1))
}

// HullMax returns the hull ceiling for a hull tier.
func (b *Balance) HullMax(tier int) float64 {
	return b.Game.DefaultHullHP * math.Pow(b.Game.TierMultiplier, float64(tier-1))
}

// ShieldMax returns the shield ceiling for a shield tier.
func (b *Balance) ShieldMax(tier int) float64 {
	return b.Game.DefaultShieldHP * math.Pow(b.Game.ShieldTierMultiplier, float64(tier-1))
}

// CargoMax looks up the tabled cargo capacity.
func (b *Balance) CargoMax(tier int) int64 {
	return b.CargoCapacity[clampTier(tier)-1]
}

// WeaponCooldown shrinks the base cooldown by weapon tier and energy core.
func (b *Balance) WeaponCooldown(weaponTier, coreTier int) float64 {
	base := float64(b.Game.BaseWeaponCooldownMS)
	cd := base / math.Pow(b.Game.TierMultiplier, float64(weaponTier-1))
	return cd * (1 - b.EnergyCore.CooldownReduction[clampTier(coreTier)-1])
}

// MiningDuration shrinks with mining tier.
func (b *Balance) MiningDuration(tier int) float64 {
	return float64(b.Game.BaseMiningTimeMS) / math.Pow(b.Game.TierMultiplier, float64(tier-1))
}

// MiningYield grows with mining tier; always at least one unit.
func (b *Balance) MiningYield(tier int) int64 {
	y := math.Floor(float64(b.Game.BaseMiningYield) * math.Pow(b.Game.TierMultiplier, float64(tier-1)))
	if y < 1 {
		return 1
	}
	return int64(y)
}

// InterestRadius is twice the tier-scaled radar range.
func (b *Balance) InterestRadius(radarTier int) float64 {
	return b.Tiered(b.Game.BaseRadarRange, radarTier) * 2
}

// UpgradeCostFor returns the cost of moving component to targetTier.
func (b *Balance) UpgradeCostFor(component string, targetTier int) (UpgradeCost, bool) {
	for _, c := range b.UpgradeRequirements[component] {
		if c.Tier == targetTier {
			return c, true
		}
	}
	return UpgradeCost{}, false
}

func clampTier(t int) int {
	if t < TierMin {
		return TierMin
	}
	if t > TierMax {
		return TierMax
	}
	return t
}
