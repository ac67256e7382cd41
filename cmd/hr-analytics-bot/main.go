package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/VenGr0/hr-analytics-bot/internal/config"
	"github.com/VenGr0/hr-analytics-bot/internal/observability"
)

const serviceName = "hr-analytics-bot"

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Answer HR analytics questions over CSV datasets",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand(), newMigrateCommand(), newAskCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the provider chain and validates the result
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateWithContext(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, component string) *observability.Logger {
	return observability.NewLogger(component).
		WithLevel(observability.ParseLogLevel(cfg.Logging.Level)).
		WithFormat(observability.LogFormat(cfg.Logging.Format))
}
