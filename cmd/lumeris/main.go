package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumeris/hub/internal/config"
)

var configPath string

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "lumeris",
		Short:   "Lumeris hub - gaming and DeFi dashboard backend",
		Long:    "Serve per-user dashboards aggregated from gaming and DeFi records, behind a two-tier cache",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(
		serveCmd(),
		cacheCmd(),
		seedCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when given and applies environment overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
