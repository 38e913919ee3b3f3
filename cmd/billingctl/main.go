// Command billingctl is the operator CLI for international SMS billing state.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"comms-platform/internal/audit"
	"comms-platform/internal/config"
	"comms-platform/internal/ledger"
	"comms-platform/pkg/logger"
	"comms-platform/pkg/utils"

	"github.com/joho/godotenv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(openPostgres)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openPostgres builds the ledger against the configured database.
func openPostgres(ctx context.Context) (*backend, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 2})
	if err != nil {
		return nil, err
	}
	return &backend{
		ledger:  ledger.NewService(ledger.NewPostgresStore(db), audit.NewService(audit.NewPostgresRepo(db))),
		migrate: func(ctx context.Context) error { return ledger.Migrate(ctx, db) },
		close:   db.Close,
	}, nil
}
