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

// Package solace connects factories to Solace PubSub+. Topics use direct
// messaging. Queues are durable endpoints that attract the topic of the
// same name, so a queue send is a guaranteed publish to that topic.
package solace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"solace.dev/go/messaging"
	"solace.dev/go/messaging/pkg/solace"
	"solace.dev/go/messaging/pkg/solace/config"
	"solace.dev/go/messaging/pkg/solace/message"
	"solace.dev/go/messaging/pkg/solace/resource"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

const (
	EnvVPN = "solace.VPN"

	defaultVPN      = "default"
	temporaryPrefix = "jms-bridge/tmp/"
	ackTimeout      = 10 * time.Second
	terminateGrace  = 5 * time.Second
	// ReceiveMessage ignores contexts, so long waits are sliced
	receiveSlice = time.Second
)

type Provider struct {
	host   string
	vpn    string
	logger *slog.Logger
}

func New(url string, env map[string]string, logger *slog.Logger) (core.Provider, error) {
	if url == "" {
		return nil, fmt.Errorf("solace host: %w", core.ErrNameNotFound)
	}
	p := &Provider{host: url, vpn: defaultVPN, logger: logger}
	if v := env[EnvVPN]; v != "" {
		p.vpn = v
	}
	return p, nil
}

func (p *Provider) Name() string { return "solace" }

func (p *Provider) Connect(ctx context.Context, opts core.ConnectOptions) (core.Connection, error) {
	props := config.ServicePropertyMap{
		config.TransportLayerPropertyHost: p.host,
		config.ServicePropertyVPNName:     p.vpn,
	}
	if opts.Username != "" {
		props[config.AuthenticationPropertySchemeBasicUserName] = opts.Username
		props[config.AuthenticationPropertySchemeBasicPassword] = opts.Password
	}
	if opts.ClientID != "" {
		props[config.ClientPropertyName] = opts.ClientID
	}
	svc, err := messaging.NewMessagingServiceBuilder().FromConfigurationProvider(props).Build()
	if err != nil {
		return nil, fmt.Errorf("solace build: %w", err)
	}
	if err := svc.Connect(); err != nil {
		return nil, fmt.Errorf("solace connect %s: %w", p.host, err)
	}
	c := &connection{provider: p, svc: svc, clientID: opts.ClientID, done: base.NewDone()}
	svc.AddServiceInterruptionListener(func(ev solace.ServiceEvent) {
		p.logger.Warn("solace service interrupted", "host", p.host, "error", ev.GetCause())
		c.done.Close(ev.GetCause())
	})
	return c, nil
}

type connection struct {
	provider *Provider
	svc      solace.MessagingService
	clientID string
	done     *base.Done
}

func (c *connection) Session(ctx context.Context, opts core.SessionOptions) (core.Session, error) {
	if c.done.Closed() {
		return nil, core.ErrClosed
	}
	return &session{conn: c, ledger: base.NewLedger(opts), temps: map[string]solace.PersistentMessageReceiver{}}, nil
}

func (c *connection) Done() <-chan struct{} { return c.done.C() }

func (c *connection) Close() error {
	if c.done.Closed() {
		return nil
	}
	c.done.Close(core.ErrClosed)
	return c.svc.Disconnect()
}

// receiver is the part of the direct and persistent receivers a consumer
// uses.
type receiver interface {
	ReceiveMessage(timeout time.Duration) (message.InboundMessage, error)
	Terminate(gracePeriod time.Duration) error
}

type session struct {
	conn   *connection
	ledger *base.Ledger

	mu    sync.Mutex
	temps map[string]solace.PersistentMessageReceiver
}

func (s *session) Producer(ctx context.Context, dest core.Destination) (core.Producer, error) {
	svc := s.conn.svc
	if dest.Type == core.DestinationTopic && !dest.Temporary {
		pub, err := svc.CreateDirectMessagePublisherBuilder().Build()
		if err != nil {
			return nil, fmt.Errorf("solace publisher %s: %w", dest, err)
		}
		if err := pub.Start(); err != nil {
			return nil, fmt.Errorf("solace publisher start %s: %w", dest, err)
		}
		return &producer{session: s, dest: dest, direct: pub}, nil
	}
	pub, err := svc.CreatePersistentMessagePublisherBuilder().Build()
	if err != nil {
		return nil, fmt.Errorf("solace publisher %s: %w", dest, err)
	}
	if err := pub.Start(); err != nil {
		return nil, fmt.Errorf("solace publisher start %s: %w", dest, err)
	}
	return &producer{session: s, dest: dest, persistent: pub}, nil
}

func (s *session) Consumer(ctx context.Context, dest core.Destination, opts core.ConsumerOptions) (core.Consumer, error) {
	sel, err := core.ParseSelector(opts.Selector)
	if err != nil {
		return nil, &core.ConfigError{Scope: dest.Key(), Param: "selector", Err: err}
	}
	k := &consumer{session: s, dest: dest, selector: sel}
	switch {
	case dest.Temporary:
		s.mu.Lock()
		r, ok := s.temps[dest.Name]
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("solace %s: %w", dest, core.ErrNameNotFound)
		}
		k.persistent, k.shared = r, true
	case dest.Type == core.DestinationTopic && !opts.Durable:
		r, err := s.conn.svc.CreateDirectMessageReceiverBuilder().
			WithSubscriptions(resource.TopicSubscriptionOf(dest.Name)).
			Build()
		if err != nil {
			return nil, fmt.Errorf("solace receiver %s: %w", dest, err)
		}
		if err := r.Start(); err != nil {
			return nil, fmt.Errorf("solace receiver start %s: %w", dest, err)
		}
		k.direct = r
	default:
		k.queue = queueFor(dest, opts, s.conn.clientID)
		if err := k.open(); err != nil {
			return nil, err
		}
	}
	return k, nil
}

func queueFor(dest core.Destination, opts core.ConsumerOptions, clientID string) *resource.Queue {
	if dest.Type == core.DestinationTopic {
		return resource.QueueDurableExclusive(clientID + "/" + opts.SubscriptionName)
	}
	return resource.QueueDurableNonExclusive(dest.Name)
}

func (s *session) TemporaryQueue(ctx context.Context) (core.Destination, error) {
	name := temporaryPrefix + strings.ToLower(ulid.Make().String())
	r, err := s.conn.svc.CreatePersistentMessageReceiverBuilder().
		WithMessageClientAcknowledgement().
		WithSubscriptions(resource.TopicSubscriptionOf(name)).
		Build(resource.QueueNonDurableExclusive(name))
	if err != nil {
		return core.Destination{}, fmt.Errorf("solace temporary queue: %w", err)
	}
	if err := r.Start(); err != nil {
		return core.Destination{}, fmt.Errorf("solace temporary queue start: %w", err)
	}
	s.mu.Lock()
	s.temps[name] = r
	s.mu.Unlock()
	return core.Destination{Name: name, Type: core.DestinationQueue, Temporary: true}, nil
}

func (s *session) Transacted() bool { return s.ledger.Transacted() }

func (s *session) Commit(ctx context.Context) error { return s.ledger.Commit(ctx) }

func (s *session) Rollback(ctx context.Context) error { return s.ledger.Rollback(ctx) }

func (s *session) Acknowledge(ctx context.Context) error { return s.ledger.Acknowledge(ctx) }

func (s *session) Recover(ctx context.Context) error { return s.ledger.Recover(ctx) }

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), terminateGrace)
	defer cancel()
	errs := []error{s.ledger.Close(ctx)}
	s.mu.Lock()
	for name, r := range s.temps {
		errs = append(errs, r.Terminate(terminateGrace))
		delete(s.temps, name)
	}
	s.mu.Unlock()
	return errors.Join(errs...)
}

type producer struct {
	session    *session
	dest       core.Destination
	direct     solace.DirectMessagePublisher
	persistent solace.PersistentMessagePublisher
}

func (p *producer) Destination() core.Destination { return p.dest }

func (p *producer) Send(ctx context.Context, msg *core.Message, opts core.SendOptions) error {
	core.PrepareForSend(msg, p.dest, opts, time.Now())
	out, err := p.build(msg)
	if err != nil {
		return err
	}
	topic := resource.TopicOf(p.dest.Name)
	return p.session.ledger.Send(ctx, func(ctx context.Context) error {
		var err error
		if p.direct != nil {
			err = p.direct.Publish(out, topic)
		} else {
			err = p.persistent.PublishAwaitAcknowledgement(out, topic, ackTimeout, nil)
		}
		if err != nil {
			return fmt.Errorf("solace publish %s: %w", p.dest, err)
		}
		return nil
	})
}

func (p *producer) build(msg *core.Message) (message.OutboundMessage, error) {
	body, err := base.EncodeBody(msg)
	if err != nil {
		return nil, err
	}
	b := p.session.conn.svc.MessageBuilder().
		WithApplicationMessageID(msg.MessageID).
		WithPriority(msg.Priority)
	if msg.CorrelationID != "" {
		b = b.WithCorrelationID(msg.CorrelationID)
	}
	if !msg.Expiration.IsZero() {
		b = b.WithExpiration(msg.Expiration)
	}
	for k, v := range base.HeaderProperties(msg) {
		b = b.WithProperty(config.MessageProperty(k), v)
	}
	out, err := b.BuildWithByteArrayPayload(body)
	if err != nil {
		return nil, fmt.Errorf("solace message: %w", err)
	}
	return out, nil
}

func (p *producer) Close() error {
	if p.direct != nil {
		return p.direct.Terminate(terminateGrace)
	}
	return p.persistent.Terminate(terminateGrace)
}

type consumer struct {
	session  *session
	dest     core.Destination
	selector *core.Selector
	queue    *resource.Queue
	shared   bool

	direct     solace.DirectMessageReceiver
	persistent solace.PersistentMessageReceiver

	mu sync.Mutex
	// rewind restarts the queue receiver so released messages come back
	rewind bool
}

func (k *consumer) open() error {
	r, err := k.session.conn.svc.CreatePersistentMessageReceiverBuilder().
		WithMessageClientAcknowledgement().
		WithSubscriptions(resource.TopicSubscriptionOf(k.dest.Name)).
		Build(k.queue)
	if err != nil {
		return fmt.Errorf("solace receiver %s: %w", k.dest, err)
	}
	if err := r.Start(); err != nil {
		return fmt.Errorf("solace receiver start %s: %w", k.dest, err)
	}
	k.persistent = r
	return nil
}

func (k *consumer) current() (receiver, error) {
	if k.direct != nil {
		return k.direct, nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.rewind && k.queue != nil {
		_ = k.persistent.Terminate(terminateGrace)
		if err := k.open(); err != nil {
			return nil, err
		}
		k.rewind = false
	}
	return k.persistent, nil
}

func (k *consumer) Destination() core.Destination { return k.dest }

func (k *consumer) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if k.session.conn.done.Closed() {
			return nil, core.ErrClosed
		}
		wait := receiveSlice
		if timeout > 0 {
			left := time.Until(deadline)
			if left <= 0 {
				return nil, nil
			}
			wait = min(wait, left)
		}
		r, err := k.current()
		if err != nil {
			return nil, err
		}
		in, err := r.ReceiveMessage(wait)
		if err != nil {
			var te *solace.TimeoutError
			if errors.As(err, &te) {
				continue
			}
			return nil, fmt.Errorf("solace receive %s: %w", k.dest, err)
		}
		msg := fromInbound(in, k.dest)
		persistent := k.persistent
		if !k.selector.Matches(msg) {
			if k.direct == nil {
				_ = persistent.Ack(in)
			}
			continue
		}
		d := base.Delivery{}
		if k.direct == nil {
			d.Ack = func(context.Context) error { return persistent.Ack(in) }
			d.Nack = func(context.Context) error {
				k.mu.Lock()
				k.rewind = true
				k.mu.Unlock()
				return nil
			}
		}
		if err := k.session.ledger.Delivered(ctx, d); err != nil {
			return nil, err
		}
		return msg, nil
	}
}

func (k *consumer) Close() error {
	if k.shared {
		return nil
	}
	if k.direct != nil {
		return k.direct.Terminate(terminateGrace)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.persistent.Terminate(terminateGrace)
}

func fromInbound(in message.InboundMessage, dest core.Destination) *core.Message {
	props := map[string]string{}
	for k, v := range in.GetProperties() {
		props[k] = core.FormatValue(v)
	}
	payload, _ := in.GetPayloadAsBytes()
	msg, err := base.DecodeBody(base.BodyKind(props), payload)
	if err != nil {
		// an undecodable map body is surfaced as bytes
		msg = core.NewBytesMessage(payload)
	}
	msg.Priority = core.DefaultPriority
	msg.DeliveryMode = core.Persistent
	if id, ok := in.GetApplicationMessageID(); ok {
		msg.MessageID = id
	}
	if id, ok := in.GetCorrelationID(); ok {
		msg.CorrelationID = id
	}
	msg.Redelivered = in.IsRedelivered()
	base.ApplyHeaderProperties(msg, props)
	d := dest
	msg.Destination = &d
	return msg
}
