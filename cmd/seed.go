package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/seed"
	"procodus.dev/vitals/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo patient and insert demo readings",
	Long: `Seed the database with:
- The demo patient (` + seed.DemoEmail + `) if it does not exist
- Twenty fixed readings back-dated over the last two hours
- Optionally N generated readings spread over the last day

Seeding needs privileged database credentials (seed.db.user / seed.db.password)
and is never run by the service itself.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	// Seed-specific flags
	seedCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	seedCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	seedCmd.Flags().String("db-user", "", "Privileged PostgreSQL user")
	seedCmd.Flags().String("db-password", "", "Privileged PostgreSQL password")
	seedCmd.Flags().String("db-name", "vitals", "PostgreSQL database name")
	seedCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	seedCmd.Flags().Int("random", 0, "Number of generated readings to add")
	seedCmd.Flags().Int("devices", 3, "Number of wristbands the generated readings come from")
	seedCmd.Flags().Int64("seed", 0, "Seed for generated readings (0 picks one from the clock)")
	seedCmd.Flags().Duration("timeout", time.Minute, "Timeout for the whole seeding run")

	// Bind flags to viper
	_ = viper.BindPFlag("seed.db.host", seedCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("seed.db.port", seedCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("seed.db.user", seedCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("seed.db.password", seedCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("seed.db.name", seedCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("seed.db.sslmode", seedCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("seed.random", seedCmd.Flags().Lookup("random"))
	_ = viper.BindPFlag("seed.devices", seedCmd.Flags().Lookup("devices"))
	_ = viper.BindPFlag("seed.seed", seedCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("seed.timeout", seedCmd.Flags().Lookup("timeout"))
}

func runSeed(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting seed")

	dbCfg := &store.DBConfig{
		Logger:   logger,
		Host:     viper.GetString("seed.db.host"),
		Port:     viper.GetInt("seed.db.port"),
		User:     viper.GetString("seed.db.user"),
		Password: viper.GetString("seed.db.password"),
		DBName:   viper.GetString("seed.db.name"),
		SSLMode:  viper.GetString("seed.db.sslmode"),
		Migrate:  true,
	}
	if dbCfg.User == "" || dbCfg.Password == "" {
		return errors.New("seeding requires privileged credentials: set seed.db.user and seed.db.password")
	}

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("seed.timeout"))
	defer cancel()

	db, err := store.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := store.CloseDB(db, logger); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	st, err := store.New(db, logger)
	if err != nil {
		return err
	}

	hasher, err := auth.NewService(&auth.Config{Store: st, Logger: logger})
	if err != nil {
		return err
	}

	seeder, err := seed.New(&seed.Config{Store: st, Hasher: hasher, Logger: logger})
	if err != nil {
		return err
	}

	res, err := seeder.SeedDemo(ctx)
	if err != nil {
		logger.Error("failed to seed demo data", "error", err)
		return err
	}
	inserted := res.Inserted

	if n := viper.GetInt("seed.random"); n > 0 {
		seedValue := viper.GetInt64("seed.seed")
		if seedValue == 0 {
			seedValue = time.Now().UnixNano()
		}
		extra, err := seeder.SeedRandom(ctx, n, viper.GetInt("seed.devices"), seedValue)
		if err != nil {
			logger.Error("failed to seed random readings", "error", err)
			return err
		}
		inserted += extra.Inserted
	}

	logger.Info("seed completed",
		"user_id", res.UserID,
		"user_created", res.Created,
		"readings_inserted", inserted,
	)
	fmt.Printf("Demo account: %s / %s (%d readings inserted)\n", seed.DemoEmail, seed.DemoPassword, inserted)
	return nil
}
