package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const FileEventsExchange = "files.events"

func NewConnection(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

// Publisher sends JSON events to a durable topic exchange.
type Publisher struct {
	exchange string
	conn     *amqp.Connection
	mu       sync.Mutex
	channel  *amqp.Channel
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &Publisher{exchange: exchange, conn: conn, channel: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, ownerID, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(ownerID, event), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RoutingKey prefixes the event with the owner so consumers can bind per owner.
func RoutingKey(ownerID, event string) string {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return event
	}
	return strings.ReplaceAll(ownerID, ".", "_") + "." + event
}
