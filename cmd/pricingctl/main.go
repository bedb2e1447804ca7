// Package main implements pricingctl, the operator CLI for the pricing engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/timmy/pricebook/internal/app"
	"github.com/timmy/pricebook/internal/config"
	"github.com/timmy/pricebook/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pricingctl",
	Short:         "Operate the bulk pricing engine",
	Long:          "pricingctl imports catalogs, seeds preset pricing modes and inspects or resumes pricing jobs against the configured database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "Path to config file")
}

func main() {
	_ = godotenv.Load()

	logger.SetDefaultLogger(logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "pricingctl",
	}))
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads the configuration, builds the application, runs fn and
// releases the application afterwards.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(ctx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
