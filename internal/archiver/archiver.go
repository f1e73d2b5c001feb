package archiver

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/metrics"
	"github.com/tagops/visitflow/internal/rabbit"
	"github.com/tagops/visitflow/internal/repository"
)

const queueName = "archiver.q"

// Worker copies every envelope crossing the bus into the ClickHouse audit
// log. It shares one durable queue across instances; the archive insert is
// idempotent enough for at-least-once (duplicates share a message id and are
// collapsed at query time).
type Worker struct {
	Archive repository.ArchiveRepository
	Rabbit  rabbit.Config
	Log     *zap.Logger
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		err := w.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.Log.Warn("archiver consume loop ended, redialing", zap.Error(err))

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
		rabbit.Binding{Exchange: contracts.EventsExchange, Pattern: contracts.BindAll},
		rabbit.Binding{Exchange: contracts.CommandsExchange, Pattern: contracts.BindAll},
	)
	if err != nil {
		return err
	}

	deliveries, err := client.Consume(queue)
	if err != nil {
		return err
	}

	w.Log.Info("archiver listening", zap.String("queue", queue))

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
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	env, err := contracts.DecodeEnvelope(d.Body)
	if err != nil {
		w.Log.Error("poison message, rejecting to dead-letter", zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues("archiver", "reject").Inc()
		_ = d.Reject(false)
		return
	}

	if err := w.Archive.InsertEnvelope(ctx, env, time.Now().UTC()); err != nil {
		w.Log.Warn("archive insert failed, requeueing",
			zap.String("message_id", env.MessageID), zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues("archiver", "requeue").Inc()
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
	metrics.EventsConsumedTotal.WithLabelValues("archiver", "ack").Inc()
}
