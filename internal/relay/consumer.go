package relay

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tagops/visitflow/internal/contracts"
	"github.com/tagops/visitflow/internal/metrics"
	"github.com/tagops/visitflow/internal/rabbit"
)

const queuePrefix = "display-relay"

// PushMessage is the wire format pushed to viewers.
type PushMessage struct {
	Type           string `json:"type"` // "append" | "remove"
	VisitSessionID string `json:"visitSessionId"`
	EnlisteeName   string `json:"enlisteeName,omitempty"`
	PackLocation   string `json:"packLocation,omitempty"`
}

// Consumer turns display events into hub broadcasts. Every relay instance
// declares its own auto-delete queue so each one sees every display event.
type Consumer struct {
	Hub    *Hub
	Rabbit rabbit.Config
	Log    *zap.Logger
}

// Run consumes until ctx is cancelled, redialing on connection loss. The
// instance queue is recreated on every redial; missed messages are covered by
// the viewer's snapshot fetch on reconnect.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("display consumer loop ended, redialing", zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	client, err := rabbit.DialWithRetry(ctx, c.Rabbit)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.DeclareTopology(); err != nil {
		return err
	}

	queue, err := client.DeclareInstanceQueue(queuePrefix,
		rabbit.Binding{Exchange: contracts.EventsExchange, Pattern: contracts.BindAnyRoom(contracts.DisplayAppend)},
		rabbit.Binding{Exchange: contracts.EventsExchange, Pattern: contracts.BindAnyRoom(contracts.DisplayRemove)},
	)
	if err != nil {
		return err
	}

	deliveries, err := client.Consume(queue)
	if err != nil {
		return err
	}

	c.Log.Info("display relay listening", zap.String("queue", queue))

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
			c.handle(d)
		}
	}
}

func (c *Consumer) handle(d amqp.Delivery) {
	msg, group, err := translate(d.Body)
	if err != nil {
		c.Log.Error("poison display event, rejecting to dead-letter", zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues("relay", "reject").Inc()
		_ = d.Reject(false)
		return
	}

	if err := c.Hub.Broadcast(group, msg); err != nil {
		c.Log.Warn("broadcast failed, requeueing", zap.String("group", group), zap.Error(err))
		metrics.EventsConsumedTotal.WithLabelValues("relay", "requeue").Inc()
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
	metrics.EventsConsumedTotal.WithLabelValues("relay", "ack").Inc()
}

// translate decodes a display event into the push message and its target
// group. Applying the same append twice replaces the same display row, so
// redelivery is harmless downstream.
func translate(body []byte) (PushMessage, string, error) {
	env, err := contracts.DecodeEnvelope(body)
	if err != nil {
		return PushMessage{}, "", err
	}

	group := GroupKey(env.SiteID, env.RoomID)

	v, err := contracts.DecodePayload(env)
	if err != nil {
		return PushMessage{}, "", err
	}

	switch p := v.(type) {
	case *contracts.DisplayAppendPayload:
		return PushMessage{
			Type:           "append",
			VisitSessionID: p.VisitSessionID,
			EnlisteeName:   p.EnlisteeName,
			PackLocation:   p.PackLocation,
		}, group, nil
	case *contracts.DisplayRemovePayload:
		return PushMessage{
			Type:           "remove",
			VisitSessionID: p.VisitSessionID,
		}, group, nil
	default:
		// unreachable with the declared bindings
		return PushMessage{}, "", fmt.Errorf("relay: unexpected event %s", env.Name)
	}
}
