package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tagops/visitflow/internal/config"
	"github.com/tagops/visitflow/internal/db"
	"github.com/tagops/visitflow/internal/logger"
	"github.com/tagops/visitflow/internal/metrics"
	"github.com/tagops/visitflow/internal/outbox"
	"github.com/tagops/visitflow/internal/rabbit"
	"github.com/tagops/visitflow/internal/repository"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Run the outbox publisher (single instance per outbox table)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

		if cfg.Outbox.BatchSize <= 0 || cfg.Outbox.PollInterval <= 0 || cfg.Outbox.MaxAttempts <= 0 {
			return fmt.Errorf("invalid outbox config: batch=%d poll=%s max_attempts=%d",
				cfg.Outbox.BatchSize, cfg.Outbox.PollInterval, cfg.Outbox.MaxAttempts)
		}

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

		client, err := rabbit.DialWithRetry(ctx, rabbitConfig(cfg))
		if err != nil {
			return fmt.Errorf("rabbit connect: %w", err)
		}
		defer client.Close()

		if err := client.DeclareTopology(); err != nil {
			return fmt.Errorf("declare topology: %w", err)
		}

		p := outbox.NewPublisher(repository.NewOutboxRepository(mysqlDB), client, logger.Log)
		p.BatchSize = cfg.Outbox.BatchSize
		p.PollInterval = cfg.Outbox.PollInterval
		p.ErrorBackoff = cfg.Outbox.ErrorBackoff
		p.MaxAttempts = cfg.Outbox.MaxAttempts

		logger.Log.Info("outbox publisher started",
			zap.Int("batch_size", p.BatchSize),
			zap.Duration("poll_interval", p.PollInterval))

		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func rabbitConfig(cfg config.Config) rabbit.Config {
	return rabbit.Config{
		URI:           cfg.Rabbit.URI,
		PrefetchCount: cfg.Rabbit.PrefetchCount,
		DialTimeout:   cfg.Rabbit.DialTimeout,
		RedialBackoff: cfg.Rabbit.RedialBackoff,
		MaxRedialWait: cfg.Rabbit.MaxRedialWait,
	}
}
