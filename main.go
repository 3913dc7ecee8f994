package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"reply_tracker/config"
	"reply_tracker/internal/bootstrap"
	"reply_tracker/pkg/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "reply-tracker",
	Short:         "Matches lender replies to loan submissions and classifies them",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env file if exists (for local development)
		if err := godotenv.Load(); err != nil {
			logger.Debug("No .env file found, using environment variables")
		}

		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		bootstrap.InitLogger(cfg)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("Command failed: %v", err)
	}
}
