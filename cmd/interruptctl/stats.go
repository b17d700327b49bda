package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"interruptd/internal/service/pattern"
)

var (
	statsUser    int
	statsPattern string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the stats summary of a pattern as JSON",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if statsUser <= 0 || statsPattern == "" {
			return fmt.Errorf("--user and --pattern are required")
		}
		return nil
	},
	RunE: withEnv(func(ctx context.Context, e *env) error {
		registry := pattern.NewRegistry(e.store, e.index, e.log)
		summary, err := registry.Stats(ctx, statsUser, statsPattern)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, summary)
	}),
}

func init() {
	statsCmd.Flags().IntVar(&statsUser, "user", 0, "user id")
	statsCmd.Flags().StringVar(&statsPattern, "pattern", "", "pattern id")

	rootCmd.AddCommand(statsCmd)
}
