package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corrigan-tasks/engine/internal/follower"
)

var followTaskID int64

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "tail one task's frame log until it terminates",
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

		events := e.follower.Follow(ctx, followTaskID, follower.WithPollInterval(cfg.FollowInterval))
		for ev := range events {
			if ev.Err != nil {
				return fmt.Errorf("follow: %w", ev.Err)
			}
			fmt.Printf("frame id=%d type=%s data=%v\n", ev.Frame.ID, ev.Frame.Type, ev.Frame.Data)
		}
		return nil
	},
}

func init() {
	followCmd.Flags().Int64Var(&followTaskID, "task-id", 0, "task id to follow (required)")
	_ = followCmd.MarkFlagRequired("task-id")
}
