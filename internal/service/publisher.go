package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/queue"
)

// Publisher publishes domain events to RabbitMQ. It dials per publish so a
// broker outage never blocks startup; failures are logged and returned so
// callers can choose to ignore them.
type Publisher struct {
	url string
	log *zap.Logger
	now func() time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log.With(zap.String("component", "publisher")), now: time.Now}
}

func (p *Publisher) ReservationConfirmed(ctx context.Context, reservationID string) error {
	return p.publishEvent(ctx, queue.EventConfirmed, reservationID)
}

func (p *Publisher) ReservationCancelled(ctx context.Context, reservationID string) error {
	return p.publishEvent(ctx, queue.EventCancelled, reservationID)
}

func (p *Publisher) publishEvent(ctx context.Context, typ, reservationID string) error {
	return p.Publish(ctx, queue.ReservationEventsQueue, queue.ReservationEvent{
		Type:          typ,
		ReservationID: reservationID,
		OccurredAt:    p.now().UTC().Format(time.RFC3339),
	})
}

// Kick asks the notifier for an immediate dispatch pass.
func (p *Publisher) Kick(ctx context.Context, reason, reservationID string) error {
	return p.Publish(ctx, queue.NotificationKickQueue, queue.NotificationKick{Reason: reason, ReservationID: reservationID})
}

// SendMagicLink hands msg to the mail pipeline.
func (p *Publisher) SendMagicLink(ctx context.Context, msg queue.MagicLinkMessage) error {
	return p.Publish(ctx, queue.MagicLinkMailQueue, msg)
}

// Publish marshals payload as JSON and publishes it persistently to the
// durable queue name through the default exchange.
func (p *Publisher) Publish(ctx context.Context, name string, payload any) error {
	log := p.log.With(zap.String("queue", name))
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		log.Warn("queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", name, false, false, pub); err != nil {
		log.Warn("publish failed", zap.Error(err))
		return err
	}
	return nil
}
