/*
Package auth
File: service.go
Description:
    Registration, login and token validation. Passwords go through bcrypt;
    both unknown-user and wrong-password collapse into one generic failure
    so the endpoint cannot be used to probe for accounts. New ships spawn
    in deep space, and a login that finds the ship parked inside a star
    relocates it before handing out the payload.
*/

package auth

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/everforgeworks/galaxies-deepspace/internal/config"
	"github.com/everforgeworks/galaxies-deepspace/internal/store"
	"github.com/everforgeworks/galaxies-deepspace/internal/world"
)

var (
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrRateLimited        = errors.New("Rate limited")
	ErrInvalidUsername    = errors.New("Username must be 3-20 letters, numbers or underscores")
	ErrInvalidPassword    = errors.New("Password must be 6-72 characters")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// PlayerPayload is the wire shape returned on auth success.
type PlayerPayload struct {
	ID             int64           `json:"id"`
	Username       string          `json:"username"`
	PositionX      float64         `json:"position_x"`
	PositionY      float64         `json:"position_y"`
	Rotation       float64         `json:"rotation"`
	VelocityX      float64         `json:"velocity_x"`
	VelocityY      float64         `json:"velocity_y"`
	HullHP         float64         `json:"hull_hp"`
	HullMax        float64         `json:"hull_max"`
	ShieldHP       float64         `json:"shield_hp"`
	ShieldMax      float64         `json:"shield_max"`
	Credits        int64           `json:"credits"`
	EngineTier     int             `json:"engine_tier"`
	WeaponType     string          `json:"weapon_type"`
	WeaponTier     int             `json:"weapon_tier"`
	ShieldTier     int             `json:"shield_tier"`
	MiningTier     int             `json:"mining_tier"`
	CargoTier      int             `json:"cargo_tier"`
	RadarTier      int             `json:"radar_tier"`
	EnergyCoreTier int             `json:"energy_core_tier"`
	HullTier       int             `json:"hull_tier"`
	ShipColorID    int             `json:"ship_color_id"`
	ProfileID      int             `json:"profile_id"`
	Inventory      []InventoryLine `json:"inventory"`
	Relics         []string        `json:"relics"`
}

// InventoryLine is one stack in the payload.
type InventoryLine struct {
	ResourceType string `json:"resource_type"`
	Quantity     int64  `json:"quantity"`
}

type credentials struct {
	Username string `validate:"required,min=3,max=20"`
	Password string `validate:"required,min=6,max=72"`
}

// Service wires the credential flow together.
type Service struct {
	store    *store.Store
	sessions *SessionManager
	bal      *config.Balance
	galaxy   world.SectorSource

	loginLimiter    *IPLimiter
	registerLimiter *IPLimiter

	validate *validator.Validate
	rng      *rand.Rand
	log      zerolog.Logger
}

func NewService(st *store.Store, sessions *SessionManager, bal *config.Balance, galaxy world.SectorSource, cfg *config.Config, log zerolog.Logger) *Service {
	return &Service{
		store:           st,
		sessions:        sessions,
		bal:             bal,
		galaxy:          galaxy,
		loginLimiter:    NewIPLimiter(cfg.LoginRateLimit),
		registerLimiter: NewIPLimiter(cfg.RegisterRateLimit),
		validate:        validator.New(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		log:             log.With().Str("category", "auth").Logger(),
	}
}

// Sessions exposes the token table to the command router.
func (s *Service) Sessions() *SessionManager { return s.sessions }

// Register creates the account, its default ship at a deep-space spawn, and
// an initial session.
func (s *Service) Register(ctx context.Context, ip, username, password string) (string, *PlayerPayload, error) {
	if !s.registerLimiter.Allow(ip) {
		return "", nil, ErrRateLimited
	}
	if err := s.checkCredentials(username, password); err != nil {
		return "", nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}

	user, err := s.store.CreateUser(ctx, username, string(hash))
	if err != nil {
		return "", nil, err
	}

	x, y := world.DeepSpaceSpawn(s.galaxy, s.bal.World.StarSizeMax, s.rng)
	sx, sy := world.SectorOf(x, y, s.galaxy.SectorSize())
	ship := &store.Ship{
		UserID:         user.ID,
		PositionX:      x,
		PositionY:      y,
		HullHP:         s.bal.HullMax(1),
		HullMax:        s.bal.HullMax(1),
		ShieldHP:       s.bal.ShieldMax(1),
		ShieldMax:      s.bal.ShieldMax(1),
		Credits:        s.bal.Game.StartingCredits,
		EngineTier:     1,
		WeaponTier:     1,
		ShieldTier:     1,
		MiningTier:     1,
		CargoTier:      1,
		RadarTier:      1,
		EnergyCoreTier: 1,
		HullTier:       1,
		WeaponType:     "laser",
		LastSectorX:    sx,
		LastSectorY:    sy,
	}
	if err := s.store.CreateShip(ctx, ship); err != nil {
		return "", nil, err
	}

	token := s.sessions.Mint(user.ID)
	payload, err := s.BuildPayload(ctx, user, ship)
	if err != nil {
		return "", nil, err
	}
	s.log.Info().Int64("user_id", user.ID).Str("username", username).Msg("registered")
	return token, payload, nil
}

// Login verifies the password and returns a fresh session. Unknown user and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, ip, username, password string) (string, *PlayerPayload, error) {
	if !s.loginLimiter.Allow(ip) {
		return "", nil, ErrRateLimited
	}

	user, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	ship, err := s.store.ShipByUser(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}
	if err := s.reconcile(ctx, ship); err != nil {
		return "", nil, err
	}

	token := s.sessions.Mint(user.ID)
	payload, err := s.BuildPayload(ctx, user, ship)
	if err != nil {
		return "", nil, err
	}
	s.log.Info().Int64("user_id", user.ID).Str("username", username).Msg("logged in")
	return token, payload, nil
}

// Validate resolves an existing token into the player payload.
func (s *Service) Validate(ctx context.Context, token string) (int64, *PlayerPayload, error) {
	userID, ok := s.sessions.Resolve(token)
	if !ok {
		return 0, nil, ErrInvalidCredentials
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	ship, err := s.store.ShipByUser(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	if err := s.reconcile(ctx, ship); err != nil {
		return 0, nil, err
	}
	payload, err := s.BuildPayload(ctx, user, ship)
	if err != nil {
		return 0, nil, err
	}
	return userID, payload, nil
}

// reconcile heals tier-derived maxima and relocates ships parked inside a
// star (e.g. saved mid-hazard before a crash).
func (s *Service) reconcile(ctx context.Context, ship *store.Ship) error {
	hullMax := s.bal.HullMax(ship.HullTier)
	shieldMax := s.bal.ShieldMax(ship.ShieldTier)
	if err := s.store.ReconcileShip(ctx, ship, hullMax, shieldMax); err != nil {
		return err
	}
	if !world.ClearOfStars(s.galaxy, ship.PositionX, ship.PositionY, s.bal.World.StarSizeMax) {
		x, y := world.DeepSpaceSpawn(s.galaxy, s.bal.World.StarSizeMax, s.rng)
		sx, sy := world.SectorOf(x, y, s.galaxy.SectorSize())
		ship.PositionX, ship.PositionY = x, y
		ship.VelocityX, ship.VelocityY = 0, 0
		s.log.Warn().Int64("user_id", ship.UserID).Msg("relocated ship out of a star on login")
		return s.store.SaveShipState(ctx, ship.UserID, x, y, 0, 0, ship.Rotation, ship.HullHP, ship.ShieldHP, sx, sy)
	}
	return nil
}

func (s *Service) checkCredentials(username, password string) error {
	creds := credentials{Username: username, Password: password}
	if err := s.validate.Struct(creds); err != nil {
		for _, fe := range err.(validator.ValidationErrors) {
			if fe.Field() == "Username" {
				return ErrInvalidUsername
			}
		}
		return ErrInvalidPassword
	}
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// BuildPayload assembles the full wire payload from the durable rows.
func (s *Service) BuildPayload(ctx context.Context, user *store.User, ship *store.Ship) (*PlayerPayload, error) {
	items, err := s.store.Inventory(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	relics, err := s.store.Relics(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	inventory := make([]InventoryLine, 0, len(items))
	for _, it := range items {
		inventory = append(inventory, InventoryLine{ResourceType: it.ResourceType, Quantity: it.Quantity})
	}
	if relics == nil {
		relics = []string{}
	}
	return &PlayerPayload{
		ID:             user.ID,
		Username:       user.Username,
		PositionX:      ship.PositionX,
		PositionY:      ship.PositionY,
		Rotation:       ship.Rotation,
		VelocityX:      ship.VelocityX,
		VelocityY:      ship.VelocityY,
		HullHP:         ship.HullHP,
		HullMax:        ship.HullMax,
		ShieldHP:       ship.ShieldHP,
		ShieldMax:      ship.ShieldMax,
		Credits:        ship.Credits,
		EngineTier:     ship.EngineTier,
		WeaponType:     ship.WeaponType,
		WeaponTier:     ship.WeaponTier,
		ShieldTier:     ship.ShieldTier,
		MiningTier:     ship.MiningTier,
		CargoTier:      ship.CargoTier,
		RadarTier:      ship.RadarTier,
		EnergyCoreTier: ship.EnergyCoreTier,
		HullTier:       ship.HullTier,
		ShipColorID:    ship.ShipColorID,
		ProfileID:      ship.ProfileID,
		Inventory:      inventory,
		Relics:         relics,
	}, nil
}
