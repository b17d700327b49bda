// Command interruptctl is the operator CLI for the interruptd database and outbox.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"interruptd/internal/config"
	"interruptd/internal/ledger"
	"interruptd/internal/repository"
	"interruptd/pkg/db"
	"interruptd/pkg/logger"
	"interruptd/pkg/outbox"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "interruptctl",
	Short:         "Operate an interruptd deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory holding base.yaml and <env>.yaml")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs: config, a pool and the stores on top of it.
type env struct {
	cfg    *config.Config
	log    *zap.Logger
	pool   *pgxpool.Pool
	outbox *outbox.Repository
	store  *repository.Store
	index  *ledger.Index
}

func openEnv() (*env, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger(cfg.Log.Level)

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(pool)

	return &env{
		cfg:    cfg,
		log:    log,
		pool:   pool,
		outbox: outboxRepo,
		store:  repository.NewStore(pool, outboxRepo, log),
		index:  ledger.NewIndex(cfg.Tracking.Year, cfg.Tracking.MaxOrdinal, cfg.Location(), nil),
	}, nil
}

func (e *env) Close() {
	e.pool.Close()
	_ = e.log.Sync()
}

// withEnv opens the environment for the duration of one command.
func withEnv(fn func(ctx context.Context, e *env) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd.Context(), e)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
