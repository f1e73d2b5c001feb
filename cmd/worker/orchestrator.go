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

	"github.com/tagops/visitflow/internal/config"
	"github.com/tagops/visitflow/internal/logger"
	"github.com/tagops/visitflow/internal/metrics"
	"github.com/tagops/visitflow/internal/orchestrator"
)

var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Run the scan saga (competing consumers on a shared queue)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := &orchestrator.Worker{
			Rabbit: rabbitConfig(cfg),
			Log:    logger.Log,
		}
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
