package orchestrator

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/metrics"
	"github.com/tagops/visitflow/internal/rabbit"
)

const queueName = "orchestrator.q"

// Worker consumes scan events from the shared orchestrator queue and publishes
// the saga's follow-ups. Instances compete on the same durable queue.
type Worker struct {
	Rabbit rabbit.Config
	Log    *zap.Logger
}

// Run consumes until ctx is cancelled, redialing on connection loss.
func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.Log.Warn("orchestrator consume loop ended, redialing", zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (w *Worker) consume(ctx context.Context) error {
	client, err := rabbit.DialWithRetry(ctx, w.Rabbit)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.DeclareTopology(); err != nil {
		return err
	}

	queue, err := client.DeclareSharedQueue(queueName,
		rabbit.Binding{Exchange: contracts.EventsExchange, Pattern: contracts.BindAnyRoom(contracts.EntryScanAccepted)},
		rabbit.Binding{Exchange: contracts.EventsExchange, Pattern: contracts.BindAnyRoom(contracts.ExitScanAccepted)},
	)
	if err != nil {
		return err
	}

	deliveries, err := client.Consume(queue)
	if err != nil {
		return err
	}

	w.Log.Info("orchestrator listening", zap.String("queue", queue))

	closed := client.NotifyClose()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-closed:
			return err
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(ctx, client, d)
		}
	}
}

// handle acks the trigger only after every follow-up publish succeeds. A retry
// re-emits the whole set with fresh message ids; downstream display effects
// are replace-by-key, so duplicates are harmless.
func (w *Worker) handle(ctx context.Context, client *rabbit.Client, d amqp.Delivery) {
	env, err := contracts.DecodeEnvelope(d.Body)
	if err != nil {
		w.Log.Error("poison message, rejecting to dead-letter", zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues("orchestrator", "reject").Inc()
		_ = d.Reject(false)
		return
	}

	followUps, err := React(env)
	if err != nil {
		// bad payload on a known name: also poison
		w.Log.Error("undecodable payload, rejecting to dead-letter",
			zap.String("message_id", env.MessageID),
			zap.String("name", env.Name.String()),
			zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues("orchestrator", "reject").Inc()
		_ = d.Reject(false)
		return
	}

	for _, out := range followUps {
		if err := client.PublishEnvelope(ctx, out); err != nil {
			w.Log.Warn("follow-up publish failed, requeueing trigger",
				zap.String("message_id", env.MessageID),
				zap.String("follow_up", out.Name.String()),
				zap.Error(err))
			metrics.EventsConsumedTotal.WithLabelValues("orchestrator", "requeue").Inc()
			_ = d.Nack(false, true)
			return
		}
	}

	if err := d.Ack(false); err != nil {
		w.Log.Warn("ack failed", zap.String("message_id", env.MessageID), zap.Error(err))
		return
	}
	metrics.EventsConsumedTotal.WithLabelValues("orchestrator", "ack").Inc()
}
