package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Mo-Nouir/database-tests/internal/core/notifications"
)

const DefaultExchange = "ledger.alerts"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AlertPublisher sends alerts to a durable topic exchange, routed by alert kind.
type AlertPublisher struct {
	conn     *amqp.Connection
	channel  publisher
	exchange string
}

func Dial(url, exchange string) (*AlertPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AlertPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AlertPublisher) Send(ctx context.Context, alert notifications.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(alert.Kind), false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    alert.ID,
			Timestamp:    time.Now().UTC(),
			Headers: amqp.Table{
				"alert_kind": string(alert.Kind),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish alert %s: %w", alert.ID, err)
	}
	return nil
}

func (p *AlertPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

func RoutingKey(kind notifications.Kind) string {
	return "alert." + string(kind)
}
