package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"interruptd/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env) error {
		applied, err := db.Migrate(ctx, e.pool, e.log)
		if err != nil {
			return err
		}
		fmt.Printf("APPLIED %d migration(s)\n", applied)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
