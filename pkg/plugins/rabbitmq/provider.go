// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

// Package rabbitmq maps JMS queues and topics onto RabbitMQ. Queues use the
// default exchange and topics use amq.topic with one bound queue per
// subscriber.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

const (
	EnvPrefetch      = "rabbitmq.Prefetch"
	EnvTopicExchange = "rabbitmq.TopicExchange"

	defaultPrefetch      = 16
	defaultTopicExchange = "amq.topic"
)

type Provider struct {
	url      string
	exchange string
	prefetch int
	logger   *slog.Logger
}

func New(url string, env map[string]string, logger *slog.Logger) (core.Provider, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq provider url: %w", core.ErrNameNotFound)
	}
	p := &Provider{url: url, exchange: defaultTopicExchange, prefetch: defaultPrefetch, logger: logger}
	if v := env[EnvTopicExchange]; v != "" {
		p.exchange = v
	}
	if v := env[EnvPrefetch]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, &core.ConfigError{Scope: "rabbitmq", Param: EnvPrefetch, Err: fmt.Errorf("%q is not a positive integer", v)}
		}
		p.prefetch = n
	}
	return p, nil
}

func (p *Provider) Name() string { return "rabbitmq" }

func (p *Provider) Connect(ctx context.Context, opts core.ConnectOptions) (core.Connection, error) {
	cfg := amqp.Config{Properties: amqp.NewConnectionProperties()}
	if opts.ClientID != "" {
		cfg.Properties.SetClientConnectionName(opts.ClientID)
	}
	if opts.Username != "" {
		cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: opts.Username, Password: opts.Password}}
	}
	conn, err := amqp.DialConfig(p.url, cfg)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	c := &connection{provider: p, conn: conn, clientID: opts.ClientID, done: base.NewDone()}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-closed; ok && err != nil {
			p.logger.Warn("rabbitmq connection lost", "error", err)
			c.done.Close(err)
			return
		}
		c.done.Close(core.ErrClosed)
	}()
	return c, nil
}

type connection struct {
	provider *Provider
	conn     *amqp.Connection
	clientID string
	done     *base.Done
}

func (c *connection) Session(ctx context.Context, opts core.SessionOptions) (core.Session, error) {
	if c.done.Closed() {
		return nil, core.ErrClosed
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.Qos(c.provider.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("rabbitmq qos: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("rabbitmq confirm mode: %w", err)
	}
	return &session{
		conn:    c,
		ch:      ch,
		ledger:  base.NewLedger(opts),
		returns: ch.NotifyReturn(make(chan amqp.Return, 16)),
	}, nil
}

func (c *connection) Done() <-chan struct{} { return c.done.C() }

func (c *connection) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

type session struct {
	conn    *connection
	ch      *amqp.Channel
	ledger  *base.Ledger
	returns chan amqp.Return

	// publishes on one channel are serialized so a return can be matched
	// to the publish that caused it
	pubMu sync.Mutex
	tags  int
}

func (s *session) Producer(ctx context.Context, dest core.Destination) (core.Producer, error) {
	if s.ch.IsClosed() {
		return nil, core.ErrClosed
	}
	return &producer{session: s, dest: dest}, nil
}

func (s *session) Consumer(ctx context.Context, dest core.Destination, opts core.ConsumerOptions) (core.Consumer, error) {
	sel, err := core.ParseSelector(opts.Selector)
	if err != nil {
		return nil, &core.ConfigError{Scope: dest.Key(), Param: "selector", Err: err}
	}
	queue, err := s.bind(dest, opts)
	if err != nil {
		return nil, err
	}
	s.tags++
	tag := fmt.Sprintf("jms-bridge-%s-%d", s.conn.clientID, s.tags)
	deliveries, err := s.ch.Consume(queue, tag, false, false, opts.NoLocal, false, nil)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq consume %s: %w", dest, err)
	}
	return &consumer{session: s, dest: dest, tag: tag, deliveries: deliveries, selector: sel}, nil
}

// bind returns the queue a consumer of dest reads from, declaring it and
// binding it to the topic exchange as needed.
func (s *session) bind(dest core.Destination, opts core.ConsumerOptions) (string, error) {
	if dest.Temporary {
		return dest.Name, nil
	}
	if dest.Type != core.DestinationTopic {
		if _, err := s.ch.QueueDeclare(dest.Name, true, false, false, false, nil); err != nil {
			return "", fmt.Errorf("rabbitmq queue declare %s: %w", dest.Name, err)
		}
		return dest.Name, nil
	}
	var (
		q   amqp.Queue
		err error
	)
	if opts.Durable {
		q, err = s.ch.QueueDeclare(s.conn.clientID+"."+opts.SubscriptionName, true, false, false, false, nil)
	} else {
		q, err = s.ch.QueueDeclare("", false, true, true, false, nil)
	}
	if err != nil {
		return "", fmt.Errorf("rabbitmq subscription queue %s: %w", dest, err)
	}
	if err := s.ch.QueueBind(q.Name, dest.Name, s.conn.provider.exchange, false, nil); err != nil {
		return "", fmt.Errorf("rabbitmq bind %s: %w", dest, err)
	}
	return q.Name, nil
}

func (s *session) TemporaryQueue(ctx context.Context) (core.Destination, error) {
	q, err := s.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return core.Destination{}, fmt.Errorf("rabbitmq temporary queue: %w", err)
	}
	return core.Destination{Name: q.Name, Type: core.DestinationQueue, Temporary: true}, nil
}

func (s *session) Transacted() bool { return s.ledger.Transacted() }

func (s *session) Commit(ctx context.Context) error { return s.ledger.Commit(ctx) }

func (s *session) Rollback(ctx context.Context) error { return s.ledger.Rollback(ctx) }

func (s *session) Acknowledge(ctx context.Context) error { return s.ledger.Acknowledge(ctx) }

func (s *session) Recover(ctx context.Context) error { return s.ledger.Recover(ctx) }

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.ledger.Close(ctx)
	if s.ch.IsClosed() {
		return err
	}
	return errors.Join(err, s.ch.Close())
}

func (s *session) publish(ctx context.Context, dest core.Destination, pub amqp.Publishing) error {
	exchange, key, mandatory := "", dest.Name, true
	if dest.Type == core.DestinationTopic && !dest.Temporary {
		exchange, mandatory = s.conn.provider.exchange, false
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, mandatory, false, pub)
	if err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", dest, err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq confirm %s: %w", dest, err)
	}
	if !acked {
		return &core.TransientBrokerError{Factory: s.conn.provider.url, Op: "publish " + dest.Key(), Err: errors.New("broker nacked message")}
	}
	// the broker sends basic.return ahead of the confirm for unroutable
	// mandatory messages
	for {
		select {
		case r := <-s.returns:
			if r.MessageId == pub.MessageId {
				return fmt.Errorf("rabbitmq publish %s: %s: %w", dest, r.ReplyText, core.ErrMissingBinding)
			}
		default:
			return nil
		}
	}
}

type producer struct {
	session *session
	dest    core.Destination
}

func (p *producer) Destination() core.Destination { return p.dest }

func (p *producer) Send(ctx context.Context, msg *core.Message, opts core.SendOptions) error {
	core.PrepareForSend(msg, p.dest, opts, time.Now())
	pub, err := toPublishing(msg)
	if err != nil {
		return err
	}
	return p.session.ledger.Send(ctx, func(ctx context.Context) error {
		return p.session.publish(ctx, p.dest, pub)
	})
}

func (p *producer) Close() error { return nil }

type consumer struct {
	session    *session
	dest       core.Destination
	tag        string
	deliveries <-chan amqp.Delivery
	selector   *core.Selector
}

func (c *consumer) Destination() core.Destination { return c.dest }

func (c *consumer) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		wait := time.Until(deadline)
		if timeout > 0 && wait <= 0 {
			return nil, nil
		}
		if timeout <= 0 {
			wait = 0
		}
		d, ok, err := base.Receive(ctx, c.deliveries, c.session.conn.done.C(), wait)
		if err != nil || !ok {
			return nil, err
		}
		msg, err := fromDelivery(d, c.dest)
		if err != nil {
			_ = d.Reject(false)
			return nil, &core.PoisonMessageError{Service: c.dest.Key(), MessageID: d.MessageId, Err: err}
		}
		if !c.selector.Matches(msg) {
			// queues hand the message back for another consumer; topic
			// subscription queues are private so the copy is dropped
			_ = d.Nack(false, c.dest.Type != core.DestinationTopic)
			continue
		}
		delivery := d
		err = c.session.ledger.Delivered(ctx, base.Delivery{
			Ack:  func(context.Context) error { return delivery.Ack(false) },
			Nack: func(context.Context) error { return delivery.Nack(false, true) },
		})
		if err != nil {
			return nil, err
		}
		return msg, nil
	}
}

func (c *consumer) Close() error {
	if c.session.ch.IsClosed() {
		return nil
	}
	return c.session.ch.Cancel(c.tag, false)
}
