package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/order-relay/kds"
	"github.com/yeremiapane/order-relay/utils"
)

var ErrDeliveriesClosed = errors.New("broker delivery channel closed")

// Channel is the subset of *amqp.Channel the relay uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Relay fans hub messages out to every relay instance through a fanout
// exchange. Messages are delivered to the local hub right away; copies
// coming back from the broker with our own instance id are skipped.
type Relay struct {
	ch         Channel
	conn       io.Closer
	exchange   string
	queue      string
	instanceID string
	local      kds.Publisher

	mu sync.Mutex
}

// Dial connects to RabbitMQ and declares the exchange and this instance's queue.
func Dial(url, exchange string, local kds.Publisher) (*Relay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	r, err := NewRelay(ch, exchange, local)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	r.conn = conn
	return r, nil
}

func NewRelay(ch Channel, exchange string, local kds.Publisher) (*Relay, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	// exclusive + auto-delete: the queue lives as long as this instance
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return &Relay{
		ch:         ch,
		exchange:   exchange,
		queue:      q.Name,
		instanceID: uuid.NewString(),
		local:      local,
	}, nil
}

func (r *Relay) InstanceID() string {
	return r.instanceID
}

// Publish delivers msg to local clients and forwards it to the other instances.
func (r *Relay) Publish(ctx context.Context, msg kds.Message) error {
	if err := r.local.Publish(ctx, msg); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.ch.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		AppId:        r.instanceID,
		Type:         msg.Event,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("forward %s to broker: %w", msg.Event, err)
	}
	return nil
}

// Run consumes messages from the other instances until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	deliveries, err := r.ch.Consume(r.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}
	utils.InfoLogger.WithFields(logrus.Fields{"exchange": r.exchange, "queue": r.queue}).Info("Broker relay consuming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			r.handle(ctx, d)
		}
	}
}

func (r *Relay) handle(ctx context.Context, d amqp.Delivery) {
	if d.AppId == r.instanceID {
		return
	}
	var msg kds.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		utils.ErrorLogger.Warnf("Dropping malformed broker message: %v", err)
		return
	}
	if err := r.local.Publish(ctx, msg); err != nil {
		utils.ErrorLogger.WithField("event", msg.Event).Errorf("Relaying broker message failed: %v", err)
	}
}

func (r *Relay) Close() error {
	err := r.ch.Close()
	if r.conn != nil {
		if cerr := r.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
