package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/adapters/cli"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/app"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/config"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/core"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/db"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/migrations"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &backend{}
	defer b.Close()
	return cli.Execute(ctx, b, os.Args[1:])
}

// backend connects on first use; commands that never touch the database
// (schema, help) work without DATABASE_URL.
type backend struct {
	cfg         *config.Config
	pool        *pgxpool.Pool
	svc         app.ApplicationService
	closeLogger func() error
}

func (b *backend) init(ctx context.Context) error {
	if b.pool != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	closeLogger, err := logger.Setup(cfg.GetLoggerConfig())
	if err != nil {
		return fmt.Errorf("logger setup: %w", err)
	}
	b.closeLogger = closeLogger

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:    cfg.DBMaxConns,
		LockTimeout: cfg.LockTimeout,
	})
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	b.cfg = cfg
	b.pool = pool
	return nil
}

func (b *backend) Migrate(ctx context.Context) error {
	if err := b.init(ctx); err != nil {
		return err
	}
	return db.Migrate(ctx, b.pool, migrations.FS, logger.WithComponent("migrate"))
}

func (b *backend) Service(ctx context.Context) (app.ApplicationService, error) {
	if b.svc != nil {
		return b.svc, nil
	}
	if err := b.init(ctx); err != nil {
		return nil, err
	}

	runner := core.NewTxRunner(b.pool, core.RetryPolicy{
		MaxAttempts: b.cfg.TxMaxAttempts,
		Backoff:     b.cfg.TxRetryBackoff,
	}, logger.WithComponent("tx"))

	sequences := core.NewSequenceService(b.pool)
	stock := core.NewStockAllocator(runner)
	rules := core.NewSettlementRules(b.pool, core.SettlementDefaults{
		CommissionPercent: b.cfg.CommissionPercent,
		LaborRate:         b.cfg.LaborRate,
		LaborExemptItem:   b.cfg.LaborExemptItem,
	})

	b.svc = app.NewAppService(
		core.NewPartyService(b.pool),
		stock,
		core.NewInvoiceService(runner, sequences, stock),
		core.NewPaymentService(runner),
		core.NewWatakService(runner, sequences, rules),
		rules,
		core.NewPartyLedger(runner),
	)
	log.Debug().Msg("services ready")
	return b.svc, nil
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.closeLogger != nil {
		_ = b.closeLogger()
	}
}
