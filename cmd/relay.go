package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tagops/visitflow/internal/config"
	"github.com/tagops/visitflow/internal/db"
	"github.com/tagops/visitflow/internal/logger"
	"github.com/tagops/visitflow/internal/metrics"
	"github.com/tagops/visitflow/internal/rabbit"
	"github.com/tagops/visitflow/internal/relay"
	"github.com/tagops/visitflow/internal/repository"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the display relay (websocket push + snapshot + bus consumer)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

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

		hub := relay.NewHub()
		visitsRepo := repository.NewVisitsRepository(mysqlDB)
		server := relay.NewServer(hub, visitsRepo)

		consumer := &relay.Consumer{
			Hub: hub,
			Rabbit: rabbit.Config{
				URI:           cfg.Rabbit.URI,
				PrefetchCount: cfg.Relay.PrefetchCount,
				DialTimeout:   cfg.Rabbit.DialTimeout,
				RedialBackoff: cfg.Rabbit.RedialBackoff,
				MaxRedialWait: cfg.Rabbit.MaxRedialWait,
			},
			Log: logger.Log,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		consumerErr := make(chan error, 1)
		go func() { consumerErr <- consumer.Run(ctx) }()

		serverErr := make(chan error, 1)
		go func() {
			logger.Log.Info("starting relay http", zap.String("addr", cfg.Relay.Addr))
			serverErr <- server.Start(cfg.Relay.Addr)
		}()

		select {
		case <-ctx.Done():
			logger.Log.Info("shutting down relay")
		case err := <-serverErr:
			if err != nil {
				logger.Log.Error("relay http exited", zap.Error(err))
			}
		case err := <-consumerErr:
			if err != nil {
				logger.Log.Error("display consumer exited", zap.Error(err))
			}
		}
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)

		return nil
	},
}
