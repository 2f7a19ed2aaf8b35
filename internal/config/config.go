/*
Package config
File: config.go
Description:
    Runtime configuration for the server process. Values come from the
    environment (optionally via a .env file) with sane defaults, so the
    binary can run with zero flags. The game balance tables live in
    universe.yaml and are loaded separately (see balance.go).
*/

package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the process needs besides the balance file.
type Config struct {
	Host string
	Port int

	SessionSecret string
	TokenExpiry   time.Duration

	LoginRateLimit    int // attempts per minute per IP
	RegisterRateLimit int

	GalaxySeed int64

	DatabasePath string
	BalancePath  string
	StaticDir    string

	TickMS         int
	PersistMS      int
	PositionSyncMS int // minimum gap between movement updates per player

	LogLevel  string
	LogPretty bool
}

// Load reads the environment and returns a validated Config.
func Load() (*Config, error) {
	// A .env file is a convenience for development; missing is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 3388)
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("TOKEN_EXPIRY", "24h")
	v.SetDefault("LOGIN_RATE_LIMIT", 10)
	v.SetDefault("REGISTER_RATE_LIMIT", 5)
	v.SetDefault("GALAXY_SEED", 42)
	v.SetDefault("DATABASE_PATH", "./data/galaxies.db")
	v.SetDefault("BALANCE_PATH", "universe.yaml")
	v.SetDefault("STATIC_DIR", "")
	v.SetDefault("TICK_MS", 50)
	v.SetDefault("PERSIST_MS", 5000)
	v.SetDefault("POSITION_SYNC_MS", 50)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	cfg := &Config{
		Host:              v.GetString("HOST"),
		Port:              v.GetInt("PORT"),
		SessionSecret:     v.GetString("SESSION_SECRET"),
		TokenExpiry:       v.GetDuration("TOKEN_EXPIRY"),
		LoginRateLimit:    v.GetInt("LOGIN_RATE_LIMIT"),
		RegisterRateLimit: v.GetInt("REGISTER_RATE_LIMIT"),
		GalaxySeed:        v.GetInt64("GALAXY_SEED"),
		DatabasePath:      v.GetString("DATABASE_PATH"),
		BalancePath:       v.GetString("BALANCE_PATH"),
		StaticDir:         v.GetString("STATIC_DIR"),
		TickMS:            v.GetInt("TICK_MS"),
		PersistMS:         v.GetInt("PERSIST_MS"),
		PositionSyncMS:    v.GetInt("POSITION_SYNC_MS"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		LogPretty:         v.GetBool("LOG_PRETTY"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.TokenExpiry < time.Minute {
		return fmt.Errorf("TOKEN_EXPIRY %s is below the 1m floor", c.TokenExpiry)
	}
	if c.TickMS < 10 || c.TickMS > 1000 {
		return fmt.Errorf("TICK_MS %d out of range [10,1000]", c.TickMS)
	}
	if c.LoginRateLimit < 1 || c.RegisterRateLimit < 1 {
		return fmt.Errorf("rate limits must be at least 1/min")
	}
	return nil
}

// Addr is the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
