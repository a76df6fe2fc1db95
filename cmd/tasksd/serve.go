package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corrigan-tasks/engine/internal/httpapi"
	"github.com/corrigan-tasks/engine/internal/worker"
)

var allowedNames []string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the worker pool and HTTP surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := notifyContext()
		defer cancel()

		e, err := buildEngine(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer e.Close()

		names := allowedNames
		if len(names) == 0 {
			names = []string{"noop"}
		}

		pool := worker.NewPool(cfg.WorkerPoolSize, e.store, e.dispatcher, cfg.WorkerConfig(names), log)
		errCh := make(chan error, 1)
		go func() { errCh <- pool.Run(ctx) }()

		router := httpapi.NewRouter(e.store, e.follower, e.metrics, log, httpapi.DefaultConfig())
		srvErrCh := make(chan error, 1)
		go func() { srvErrCh <- router.Run(cfg.HTTPAddr) }()

		log.Info("tasksd serving", "http_addr", cfg.HTTPAddr, "worker_pool_size", cfg.WorkerPoolSize)

		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("worker pool: %w", err)
			}
			return nil
		case err := <-srvErrCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().StringSliceVar(&allowedNames, "task-name", nil, "task name this process's workers will claim (repeatable); defaults to all built-in handlers")
}
