// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/oops"

	"github.com/holomush/credreset/internal/auth"
)

// publisher is the part of *amqp.Channel AMQPSender calls.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ResetMessage is the JSON body published for an external mailer.
type ResetMessage struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AMQPSender publishes reset notices to a RabbitMQ exchange.
type AMQPSender struct {
	pub        publisher
	exchange   string
	routingKey string
}

// NewAMQPSender creates an AMQPSender publishing on ch.
func NewAMQPSender(ch publisher, exchange, routingKey string) (*AMQPSender, error) {
	if ch == nil {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("amqp channel is required")
	}
	if routingKey == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("amqp routing key is required")
	}
	return &AMQPSender{pub: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Send implements auth.NotificationSender.
func (s *AMQPSender) Send(ctx context.Context, address, token string, notice auth.ResetNotice) (auth.DeliveryResult, error) {
	body, err := json.Marshal(ResetMessage{
		UserID:    notice.UserID.String(),
		Username:  notice.Username,
		Address:   address,
		Token:     token,
		ExpiresAt: notice.ExpiresAt.UTC(),
	})
	if err != nil {
		return auth.DeliveryResult{}, oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}

	id := ulid.Make().String()
	err = s.pub.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Type:         "password_reset",
		// the message is useless once the token has expired
		Expiration: expirationMillis(notice.ExpiresAt),
		Body:       body,
	})
	if err != nil {
		return auth.DeliveryResult{}, oops.Code("NOTIFY_AMQP_FAILED").
			With("exchange", s.exchange).
			With("routing_key", s.routingKey).
			Wrap(err)
	}
	return auth.DeliveryResult{Provider: "amqp", MessageID: id}, nil
}

func expirationMillis(expiresAt time.Time) string {
	ms := time.Until(expiresAt).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}

// AMQPConnection owns a broker connection and the channel AMQPSender uses.
type AMQPConnection struct {
	conn    *amqp.Connection
	Channel *amqp.Channel
}

// DialAMQP connects to url and declares a durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, oops.Code("NOTIFY_AMQP_DIAL_FAILED").Wrap(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, oops.Code("NOTIFY_AMQP_CHANNEL_FAILED").Wrap(err)
	}
	if exchange != "" {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = conn.Close()
			return nil, oops.Code("NOTIFY_AMQP_DECLARE_FAILED").With("exchange", exchange).Wrap(err)
		}
	}
	return &AMQPConnection{conn: conn, Channel: ch}, nil
}

// Close closes the channel and the connection.
func (c *AMQPConnection) Close() error {
	_ = c.Channel.Close()
	if err := c.conn.Close(); err != nil {
		return oops.Code("NOTIFY_AMQP_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

var _ auth.NotificationSender = (*AMQPSender)(nil)
