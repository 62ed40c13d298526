// Package main is the operator CLI: schema migrations, legacy dataset
// conversion and demo seeding.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/unclebandit/certificate-service/internal/app"
	"github.com/unclebandit/certificate-service/internal/config"
	"github.com/unclebandit/certificate-service/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Certificate service administration",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
		cmd.SetContext(withConfig(cmd.Context(), cfg))
		return nil
	},
	SilenceUsage: true,
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// open builds the application from the config loaded by the root command.
func open(cmd *cobra.Command) (*app.App, error) {
	cfg, ok := cmd.Context().Value(configKey{}).(*config.Config)
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return app.New(cmd.Context(), cfg)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
