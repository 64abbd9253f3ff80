package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/peermart/peermart-backend/internal/config"
	"github.com/peermart/peermart-backend/internal/db"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/server"
)

var (
	gitSHA    = "dev"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	if err := conn.AutoMigrate(
		&model.Listing{},
		&model.Thread{},
		&model.ThreadState{},
		&model.Message{},
		&model.Claim{},
	); err != nil {
		log.Fatal().Err(err).Msg("auto migrate failed")
	}

	srv, err := server.New(conn, cfg, log, gitSHA, buildTime)
	if err != nil {
		log.Fatal().Err(err).Msg("server init failed")
	}

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Msg("starting server")
	if err := srv.Start(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
