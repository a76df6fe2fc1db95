package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	enqueueName   string
	enqueueParams string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "create one task",
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

		params := map[string]any{}
		if enqueueParams != "" {
			if err := json.Unmarshal([]byte(enqueueParams), &params); err != nil {
				return fmt.Errorf("parse --params as JSON: %w", err)
			}
		}

		t, err := e.store.Create(ctx, enqueueName, params)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		fmt.Printf("created task id=%d name=%s\n", t.ID(), t.Name())
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueName, "name", "", "registered task name (required)")
	enqueueCmd.Flags().StringVar(&enqueueParams, "params", "", "task parameters as a JSON object")
	_ = enqueueCmd.MarkFlagRequired("name")
}
