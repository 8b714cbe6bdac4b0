package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"darwin.app/engine/common/id"
	"darwin.app/engine/core/config"
	"darwin.app/engine/internal/store"
)

var (
	cfg    config.Config
	rdb    *redis.Client
	stores *store.Stores
)

var rootCmd = &cobra.Command{
	Use:           "darwinctl",
	Short:         "Operate a Darwin deployment",
	Long:          `Inspect queues, resolve triage entries and trigger fixes against the Darwin Redis store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(config.ServiceTypeCLI)
		if err != nil {
			return err
		}
		if url, _ := cmd.Flags().GetString("redis-url"); url != "" {
			cfg.Redis.URL = url
		}
		// Node 3 keeps CLI-minted topic ids apart from server and worker.
		if err := id.Init(3); err != nil {
			return err
		}
		rdb, err = store.NewRedisClient(cmd.Context(), cfg.Redis.URL)
		if err != nil {
			return err
		}
		stores = store.NewStores(rdb)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rdb != nil {
			_ = rdb.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("redis-url", "", "Redis URL (defaults to REDIS_URL)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
