package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"interruptd/internal/service/billing"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage subscription plans",
}

var (
	planUser int
	planName string
)

var planSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Override the plan of a user",
	Long: `Override the plan of a user, bypassing the payment processor.
The change is published as subscription.changed like a webhook update.

Examples:
  interruptctl plan set --user 12 --plan PRO`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if planUser <= 0 {
			return fmt.Errorf("--user must be a positive user id")
		}
		return nil
	},
	RunE: withEnv(func(ctx context.Context, e *env) error {
		svc := billing.NewService(e.store, nil, e.cfg.Billing.WebhookSecret, e.log)
		view, err := svc.SetPlan(ctx, planUser, strings.ToUpper(planName))
		if err != nil {
			return err
		}
		fmt.Printf("UPDATED user %d: %s %s\n", planUser, view.Plan, view.Status)
		return nil
	}),
}

func init() {
	planSetCmd.Flags().IntVar(&planUser, "user", 0, "user id")
	planSetCmd.Flags().StringVar(&planName, "plan", "", "FREE or PRO")
	_ = planSetCmd.MarkFlagRequired("plan")

	planCmd.AddCommand(planSetCmd)
	rootCmd.AddCommand(planCmd)
}
