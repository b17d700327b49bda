package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"interruptd/pkg/mq"
	"interruptd/pkg/outbox"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and replay outbox events",
}

var (
	replayID    int64
	replayLimit int
	purgeAge    time.Duration
)

var outboxReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Republish one outbox event by id",
	Long: `Republish one outbox event by id, whatever its current status.

Examples:
  interruptctl outbox replay --id 42`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if replayID <= 0 {
			return fmt.Errorf("--id must be a positive outbox event id")
		}
		return nil
	},
	RunE: withEnv(func(ctx context.Context, e *env) error {
		return withReplay(e, func(svc *outbox.ReplayService) error {
			if err := svc.ReplayEvent(ctx, replayID); err != nil {
				return err
			}
			fmt.Printf("REPLAYED %d\n", replayID)
			return nil
		})
	}),
}

var outboxReplayFailedCmd = &cobra.Command{
	Use:   "replay-failed",
	Short: "Republish failed outbox events",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env) error {
		return withReplay(e, func(svc *outbox.ReplayService) error {
			n, err := svc.ReplayFailedEvents(ctx, replayLimit)
			if err != nil {
				return err
			}
			fmt.Printf("REPLAYED %d failed event(s)\n", n)
			return nil
		})
	}),
}

var outboxPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sent outbox events older than --older-than",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env) error {
		n, err := e.outbox.PurgeSent(ctx, purgeAge)
		if err != nil {
			return err
		}
		fmt.Printf("PURGED %d sent event(s)\n", n)
		return nil
	}),
}

func withReplay(e *env, fn func(svc *outbox.ReplayService) error) error {
	publisher, err := mq.NewPublisher(e.cfg.MQ.URL)
	if err != nil {
		return err
	}
	defer publisher.Close()
	return fn(outbox.NewReplayService(e.outbox, publisher, e.log))
}

func init() {
	outboxReplayCmd.Flags().Int64Var(&replayID, "id", 0, "outbox event id")
	outboxReplayFailedCmd.Flags().IntVar(&replayLimit, "limit", 100, "maximum events to replay")

	outboxPurgeCmd.Flags().DurationVar(&purgeAge, "older-than", 7*24*time.Hour, "minimum age of purged events")

	outboxCmd.AddCommand(outboxReplayCmd, outboxReplayFailedCmd, outboxPurgeCmd)
	rootCmd.AddCommand(outboxCmd)
}
