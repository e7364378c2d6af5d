package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/yield-optimizer/internal/config"
	"github.com/elys-network/yield-optimizer/internal/logger"
	"github.com/elys-network/yield-optimizer/internal/state"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Initialize(cfg.LogLevel)
	log.Info().Msg("Starting database reset script...")

	if !cfg.DB.Enabled() {
		log.Fatal().Msg("DB_HOST environment variable not set.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log.Info().
		Str("host", cfg.DB.Host).
		Int("port", cfg.DB.Port).
		Str("user", cfg.DB.User).
		Str("dbname", cfg.DB.DBName).
		Msg("Connecting to database")

	db, err := state.Open(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	repo := state.NewRepository(db)
	defer repo.Close()

	log.Info().Msg("Connected to database. Attempting to drop all tables...")
	if err := repo.DropSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	log.Info().Msg("Recreating database schema...")
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database reset complete!")
}
