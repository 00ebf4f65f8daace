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

// Package jms connects factories to AMQP 1.0 brokers such as ActiveMQ
// Artemis, Qpid and Azure Service Bus.
package jms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Azure/go-amqp"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

const (
	EnvQueuePrefix = "amqp.QueuePrefix"
	EnvTopicPrefix = "amqp.TopicPrefix"

	defaultTopicPrefix = "topic://"
)

type Provider struct {
	url         string
	queuePrefix string
	topicPrefix string
	logger      *slog.Logger
}

// New is the plugins.ProviderFunc for AMQP 1.0 brokers.
func New(url string, env map[string]string, logger *slog.Logger) (core.Provider, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp provider url: %w", core.ErrNameNotFound)
	}
	p := &Provider{
		url:         url,
		queuePrefix: env[EnvQueuePrefix],
		topicPrefix: defaultTopicPrefix,
		logger:      logger,
	}
	if v, ok := env[EnvTopicPrefix]; ok {
		p.topicPrefix = v
	}
	return p, nil
}

var _ plugins.ProviderFunc = New

func (p *Provider) Name() string { return "amqp" }

func (p *Provider) Connect(ctx context.Context, opts core.ConnectOptions) (core.Connection, error) {
	co := &amqp.ConnOptions{ContainerID: opts.ClientID}
	if opts.Username != "" {
		co.SASLType = amqp.SASLTypePlain(opts.Username, opts.Password)
	}
	conn, err := amqp.Dial(ctx, p.url, co)
	if err != nil {
		return nil, fmt.Errorf("amqp dial %s: %w", p.url, err)
	}
	p.logger.Debug("amqp connection opened", "url", p.url, "client_id", opts.ClientID)
	return &connection{provider: p, conn: conn, done: base.NewDone()}, nil
}

func (p *Provider) address(d core.Destination) string {
	if d.Temporary {
		return d.Name
	}
	if d.Type == core.DestinationTopic {
		return p.topicPrefix + d.Name
	}
	return p.queuePrefix + d.Name
}

// destination maps a broker address back, used for reply-to headers.
func (p *Provider) destination(addr string) core.Destination {
	if p.topicPrefix != "" && strings.HasPrefix(addr, p.topicPrefix) {
		return core.Destination{Name: strings.TrimPrefix(addr, p.topicPrefix), Type: core.DestinationTopic}
	}
	if p.queuePrefix != "" && strings.HasPrefix(addr, p.queuePrefix) {
		return core.Destination{Name: strings.TrimPrefix(addr, p.queuePrefix), Type: core.DestinationQueue}
	}
	return core.Destination{Name: addr, Type: core.DestinationQueue}
}

type connection struct {
	provider *Provider
	conn     *amqp.Conn
	done     *base.Done
}

func (c *connection) Session(ctx context.Context, opts core.SessionOptions) (core.Session, error) {
	if c.done.Closed() {
		return nil, core.ErrClosed
	}
	s, err := c.conn.NewSession(ctx, nil)
	if err != nil {
		return nil, c.check(fmt.Errorf("amqp session: %w", err))
	}
	return &session{
		conn:   c,
		sess:   s,
		ledger: base.NewLedger(opts),
		temps:  make(map[string]*amqp.Receiver),
	}, nil
}

func (c *connection) Done() <-chan struct{} { return c.done.C() }

func (c *connection) Close() error {
	if c.done.Closed() {
		return nil
	}
	c.done.Close(core.ErrClosed)
	return c.conn.Close()
}

// check marks the connection dead when err came from the transport.
func (c *connection) check(err error) error {
	var connErr *amqp.ConnError
	if errors.As(err, &connErr) {
		c.done.Close(err)
	}
	return err
}

type session struct {
	conn   *connection
	sess   *amqp.Session
	ledger *base.Ledger

	mu    sync.Mutex
	temps map[string]*amqp.Receiver
}

func (s *session) Producer(ctx context.Context, dest core.Destination) (core.Producer, error) {
	snd, err := s.sess.NewSender(ctx, s.conn.provider.address(dest), nil)
	if err != nil {
		return nil, s.conn.check(linkError(dest, err))
	}
	return &producer{session: s, dest: dest, sender: snd}, nil
}

func (s *session) Consumer(ctx context.Context, dest core.Destination, opts core.ConsumerOptions) (core.Consumer, error) {
	if dest.Temporary && opts.Selector == "" {
		s.mu.Lock()
		r, ok := s.temps[dest.Name]
		s.mu.Unlock()
		if ok {
			return &consumer{session: s, dest: dest, receiver: r, shared: true}, nil
		}
	}
	ro := &amqp.ReceiverOptions{Credit: 1}
	if opts.Selector != "" {
		ro.Filters = []amqp.LinkFilter{amqp.NewSelectorFilter(opts.Selector)}
	}
	if opts.Durable && dest.Type == core.DestinationTopic {
		ro.Name = opts.SubscriptionName
		ro.Durability = amqp.DurabilityUnsettledState
		ro.ExpiryPolicy = amqp.ExpiryPolicyNever
	}
	r, err := s.sess.NewReceiver(ctx, s.conn.provider.address(dest), ro)
	if err != nil {
		return nil, s.conn.check(linkError(dest, err))
	}
	return &consumer{session: s, dest: dest, receiver: r}, nil
}

// TemporaryQueue asks the broker for a dynamic node. The node lives as long
// as the receiver attached to it.
func (s *session) TemporaryQueue(ctx context.Context) (core.Destination, error) {
	r, err := s.sess.NewReceiver(ctx, "", &amqp.ReceiverOptions{Credit: 1, DynamicAddress: true})
	if err != nil {
		return core.Destination{}, s.conn.check(fmt.Errorf("amqp temporary queue: %w", err))
	}
	addr := r.Address()
	s.mu.Lock()
	s.temps[addr] = r
	s.mu.Unlock()
	return core.Destination{Name: addr, Type: core.DestinationQueue, Temporary: true}, nil
}

func (s *session) Transacted() bool { return s.ledger.Transacted() }

func (s *session) Commit(ctx context.Context) error { return s.ledger.Commit(ctx) }

func (s *session) Rollback(ctx context.Context) error { return s.ledger.Rollback(ctx) }

func (s *session) Acknowledge(ctx context.Context) error { return s.ledger.Acknowledge(ctx) }

func (s *session) Recover(ctx context.Context) error { return s.ledger.Recover(ctx) }

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := []error{s.ledger.Close(ctx)}
	s.mu.Lock()
	for addr, r := range s.temps {
		errs = append(errs, r.Close(ctx))
		delete(s.temps, addr)
	}
	s.mu.Unlock()
	errs = append(errs, s.sess.Close(ctx))
	return errors.Join(errs...)
}

type producer struct {
	session *session
	dest    core.Destination
	sender  *amqp.Sender
}

func (p *producer) Destination() core.Destination { return p.dest }

func (p *producer) Send(ctx context.Context, msg *core.Message, opts core.SendOptions) error {
	core.PrepareForSend(msg, p.dest, opts, time.Now())
	am, err := p.session.conn.provider.toAMQP(msg)
	if err != nil {
		return err
	}
	return p.session.ledger.Send(ctx, func(ctx context.Context) error {
		if err := p.sender.Send(ctx, am, nil); err != nil {
			return p.session.conn.check(linkError(p.dest, err))
		}
		return nil
	})
}

func (p *producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.sender.Close(ctx)
}

type consumer struct {
	session  *session
	dest     core.Destination
	receiver *amqp.Receiver
	shared   bool
}

func (c *consumer) Destination() core.Destination { return c.dest }

func (c *consumer) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	rctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	am, err := c.receiver.Receive(rctx, nil)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, c.session.conn.check(fmt.Errorf("amqp receive %s: %w", c.dest, err))
	}
	msg, err := c.session.conn.provider.fromAMQP(am, c.dest)
	r := c.receiver
	d := base.Delivery{
		Ack:  func(ctx context.Context) error { return r.AcceptMessage(ctx, am) },
		Nack: func(ctx context.Context) error { return r.ReleaseMessage(ctx, am) },
	}
	if err != nil {
		// an undecodable body is settled so it does not come back forever
		_ = r.RejectMessage(ctx, am, nil)
		return nil, &core.PoisonMessageError{Service: c.dest.Key(), Err: err}
	}
	if err := c.session.ledger.Delivered(ctx, d); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *consumer) Close() error {
	if c.shared {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.receiver.Close(ctx)
}

// linkError reports a missing node as core.ErrMissingBinding.
func linkError(dest core.Destination, err error) error {
	var le *amqp.LinkError
	if errors.As(err, &le) && le.RemoteErr != nil && le.RemoteErr.Condition == amqp.ErrCondNotFound {
		return fmt.Errorf("amqp %s: %w: %w", dest, core.ErrMissingBinding, err)
	}
	return fmt.Errorf("amqp %s: %w", dest, err)
}
