package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// routingKey - ключ маршрутизации событий документов.
const routingKey = "documents.service_form.ready"

// channel - подмножество *amqp.Channel, используемое при публикации.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// dialFunc открывает соединение и канал.
type dialFunc func() (channel, func() error, error)

// AMQPDispatcher публикует события в exchange RabbitMQ (тип topic).
// Соединение открывается лениво и переоткрывается после разрыва.
type AMQPDispatcher struct {
	exchange string
	dial     dialFunc
	logger   *slog.Logger

	mu        sync.Mutex
	ch        channel
	closeConn func() error
}

// NewAMQPDispatcher создаёт публикатора для брокера по url.
func NewAMQPDispatcher(url, exchange string, logger *slog.Logger) *AMQPDispatcher {
	dial := func() (channel, func() error, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Dial:      amqp.DefaultDial(5 * time.Second),
		})
		if err != nil {
			return nil, nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return ch, conn.Close, nil
	}
	return newAMQPDispatcher(exchange, dial, logger)
}

func newAMQPDispatcher(exchange string, dial dialFunc, logger *slog.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{
		exchange: exchange,
		dial:     dial,
		logger:   logger.With(slog.String("component", "amqp_notify")),
	}
}

// Notify публикует событие как persistent JSON-сообщение.
func (d *AMQPDispatcher) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("сериализация события: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ch, err := d.channelLocked()
	if err != nil {
		return fmt.Errorf("подключение к RabbitMQ: %w", err)
	}

	err = ch.PublishWithContext(ctx, d.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Type:         EventFormReady,
		Body:         body,
	})
	if err != nil {
		d.resetLocked()
		return fmt.Errorf("публикация события %s: %w", ev.FormNumber, err)
	}

	d.logger.Debug("Событие опубликовано",
		slog.String("form_number", ev.FormNumber),
		slog.String("booking_id", ev.BookingID),
	)
	return nil
}

// Close закрывает канал и соединение.
func (d *AMQPDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	return nil
}

func (d *AMQPDispatcher) channelLocked() (channel, error) {
	if d.ch != nil && !d.ch.IsClosed() {
		return d.ch, nil
	}
	d.resetLocked()

	ch, closeConn, err := d.dial()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(d.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeConn != nil {
			_ = closeConn()
		}
		return nil, fmt.Errorf("объявление exchange %s: %w", d.exchange, err)
	}

	d.ch = ch
	d.closeConn = closeConn
	d.logger.Info("Подключение к RabbitMQ установлено", slog.String("exchange", d.exchange))
	return ch, nil
}

func (d *AMQPDispatcher) resetLocked() {
	if d.ch != nil {
		_ = d.ch.Close()
		d.ch = nil
	}
	if d.closeConn != nil {
		_ = d.closeConn()
		d.closeConn = nil
	}
}
