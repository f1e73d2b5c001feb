package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tagops/visitflow/internal/config"
	"github.com/tagops/visitflow/internal/db"
	"github.com/tagops/visitflow/internal/logger"
	"github.com/tagops/visitflow/internal/repository"
	"github.com/tagops/visitflow/internal/sweeper"
)

var sweeperCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Expire stale visits and queue their timeout events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := &sweeper.Worker{
			DB:       mysqlDB,
			Visits:   repository.NewVisitsRepository(mysqlDB),
			Outbox:   repository.NewOutboxRepository(mysqlDB),
			Log:      logger.Log,
			Interval: cfg.Sweeper.Interval,
			VisitTTL: cfg.Sweeper.VisitTTL,
		}
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
