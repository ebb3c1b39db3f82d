package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"envelope/internal/config"
	"envelope/internal/database"
	"envelope/internal/store"
)

// rootCmd is the operator CLI for the envelope service
var rootCmd = &cobra.Command{
	Use:   "envelopectl",
	Short: "Operate the envelope contact service",
	Long: `Administrative commands for the envelope contact service.

Available subcommands:
  create-user    - Create a user, optionally with staff or admin rights
  create-company - Register a company that can receive contact messages`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(createUserCmd, createCompanyCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore loads configuration and opens the configured database.
func openStore() (store.Store, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store.NewGormStore(db), db, nil
}
