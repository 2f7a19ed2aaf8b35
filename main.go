/*
Package main
File: main.go
Description: Server entry point. Wires the config, balance sheet, store,
procedural galaxy, simulation engine and websocket hub together, then runs
until SIGTERM triggers a graceful drain.
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/everforgeworks/galaxies-deepspace/internal/api"
	"github.com/everforgeworks/galaxies-deepspace/internal/auth"
	"github.com/everforgeworks/galaxies-deepspace/internal/config"
	"github.com/everforgeworks/galaxies-deepspace/internal/game"
	"github.com/everforgeworks/galaxies-deepspace/internal/store"
	"github.com/everforgeworks/galaxies-deepspace/internal/world"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("configuration invalid")
	}
	log := newLogger(cfg)

	bal, err := config.LoadBalance(cfg.BalancePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.BalancePath).Msg("balance file invalid")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("store open failed")
	}
	defer st.Close()

	galaxy := world.NewGenerator(cfg.GalaxySeed, bal.World)
	grid := world.NewGrid(bal.World.SectorSize)
	engine := game.NewEngine(cfg, bal, galaxy, grid, st, log)

	sessions := auth.NewSessionManager(cfg.TokenExpiry)
	sessions.StartSweep(time.Minute)
	defer sessions.Stop()
	authSvc := auth.NewService(st, sessions, bal, galaxy, cfg, log)

	router := api.NewRouter(authSvc, engine, st, bal, log)
	hub := api.NewHub(router, log)
	engine.SetSender(hub)
	engine.Run()

	startedAt := time.Now()
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWs)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"uptime": int64(time.Since(startedAt).Seconds()),
		})
	})
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Int64("seed", cfg.GalaxySeed).Msg("deepspace server live")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("listener failed")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	// Stop accepting, drain sockets up to the grace deadline, then stop the
	// simulation and flush every dirty ship before the store closes.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http drain incomplete")
	}
	engine.Stop()
	log.Info().Msg("shutdown complete")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = os.Stderr
	logger := zerolog.New(out)
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
