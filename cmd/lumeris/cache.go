package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumeris/hub/internal/cache"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the shared dashboard cache",
	}
	cmd.AddCommand(cacheStatsCmd(), cacheClearCmd())
	return cmd
}

// openSharedCache connects to the configured Redis and fails when it is not
// reachable; administrative commands never fall back to process memory.
func openSharedCache(ctx context.Context) (*cache.Store, *cache.RedisCache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Redis.Enabled {
		return nil, nil, fmt.Errorf("redis is disabled in config")
	}
	rc := cache.NewRedisCache(cache.RedisCacheConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	s := cache.NewStore(cache.NewInMemoryCache(), rc, cache.StoreConfig{ConnectTimeout: cfg.Cache.ConnectTimeout})
	if mode := s.ConnectSync(ctx); mode != cache.ModeShared {
		s.Close()
		return nil, nil, fmt.Errorf("redis at %s is not reachable", cfg.Redis.Addr)
	}
	return s, rc, nil
}

func cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print backend, mode and entry count",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s, _, err := openSharedCache(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(s.Stats(ctx))
		},
	}
}

func cacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached dashboard on all instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s, rc, err := openSharedCache(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if !cache.NewInvalidator(s, rc.Client()).Clear(ctx) {
				return fmt.Errorf("clear cache failed")
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
}
