package publish

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/model"
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPPublisher publishes cycle events to an AMQP exchange.
type AMQPPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPPublisher dials the broker and declares the exchange when one is configured.
func NewAMQPPublisher(cfg config.AMQPConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("Dial: %w", err)
	}
	log.Infoln("got AMQP Connection, getting Channel...")

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("Channel: %w", err)
	}

	if cfg.Exchange != "" {
		log.Infof("declaring %q Exchange", cfg.Exchange)
		if err := channel.ExchangeDeclare(
			cfg.Exchange, // name
			"topic",      // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // noWait
			nil,          // arguments
		); err != nil {
			conn.Close()
			return nil, fmt.Errorf("Exchange Declare: %w", err)
		}
	}

	return &AMQPPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
	}, nil
}

// Publish serializes the batch and publishes it as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, batch model.TrafficBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := Encode(batch)
	if err != nil {
		return err
	}

	err = p.channel.Publish(
		p.exchange,   // publish to an exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			MessageId:    batch.CycleID,
			Timestamp:    batch.Timestamp,
			DeliveryMode: amqp.Persistent,
			ContentType:  ContentType,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("Exchange Publish: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
		log.Println("AMQP connection closed.")
	}
}
