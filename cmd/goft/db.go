package main

import (
	"github.com/MattCruikshank/goft/internal/auth"
	"github.com/MattCruikshank/goft/internal/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	seedUser     string
	seedPassword string
)

// migrateCmd creates or upgrades the database schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.NewServerDB(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer database.Close()
		logger.Info("database ready", zap.String("path", cfg.Database.Path))
		return nil
	},
}

// seedCmd fills an empty database with demo data
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default rooms and a test user",
	Long: `Inserts the default rooms when there are none, and a user to log in with
(test/123 unless --user and --password say otherwise) when that name is free.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.NewServerDB(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer database.Close()

		hash, err := auth.HashPassword(seedPassword)
		if err != nil {
			return err
		}
		res, err := database.Seed(seedUser, hash)
		if err != nil {
			return err
		}
		logger.Info("database seeded",
			zap.Int("rooms", res.Rooms),
			zap.Bool("user_created", res.User),
			zap.String("user", seedUser))
		return nil
	},
}
