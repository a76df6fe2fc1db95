// Command tasksd runs the durable task/frame engine: a worker pool dispatching
// registered handlers, an HTTP surface for producers/observers, or a one-shot
// enqueue/follow client against an already-running store. Subcommand layout and the
// cobra-over-viper wiring follow the pattern shared by the retrieved 88lin-divinesense
// and cklxx-elephant.ai CLIs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/corrigan-tasks/engine/internal/config"
	"github.com/corrigan-tasks/engine/internal/platform/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tasksd",
	Short: "durable task/frame engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML config file")
	rootCmd.AddCommand(serveCmd, enqueueCmd, followCmd)
}

func loadConfig() (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func notifyContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	viper.AutomaticEnv()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
