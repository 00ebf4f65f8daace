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

// Package mqtt5 bridges JMS destinations to an MQTT v5 broker. Topics map
// one to one; a queue becomes a shared subscription so each message reaches
// a single bridge consumer.
package mqtt5

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/oklog/ulid/v2"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

const (
	EnvShareGroup = "mqtt5.ShareGroup"
	EnvQoS        = "mqtt5.QoS"

	defaultShareGroup = "jms"
	temporaryPrefix   = "jms-bridge/tmp/"
	inboundBuffer     = 64
)

type Provider struct {
	server *url.URL
	group  string
	qos    byte
	logger *slog.Logger
}

func New(rawURL string, env map[string]string, logger *slog.Logger) (core.Provider, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("mqtt5 invalid URL %q: %w", rawURL, core.ErrNameNotFound)
	}
	p := &Provider{server: u, group: defaultShareGroup, qos: 1, logger: logger}
	if v := env[EnvShareGroup]; v != "" {
		p.group = v
	}
	switch env[EnvQoS] {
	case "":
	case "0", "1", "2":
		p.qos = env[EnvQoS][0] - '0'
	default:
		return nil, &core.ConfigError{Scope: "mqtt5", Param: EnvQoS, Err: fmt.Errorf("%q is not 0, 1 or 2", env[EnvQoS])}
	}
	return p, nil
}

func (p *Provider) Name() string { return "mqtt5" }

func (p *Provider) Connect(ctx context.Context, opts core.ConnectOptions) (core.Connection, error) {
	clientID := opts.ClientID
	persistent := clientID != ""
	if !persistent {
		clientID = "jms-bridge-" + ulid.Make().String()
	}
	c := &connection{provider: p, done: base.NewDone()}
	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{p.server},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: !persistent,
		ConnectUsername:               opts.Username,
		ConnectPassword:               []byte(opts.Password),
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			p.logger.Info("mqtt5 connection up", "client_id", clientID)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt5 connect attempt failed", "client_id", clientID, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					return c.dispatch(pr.Packet), nil
				},
			},
		},
	}
	if persistent {
		cfg.SessionExpiryInterval = 3600
	}
	cm, err := autopaho.NewConnection(context.WithoutCancel(ctx), cfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt5 connection: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cm.Disconnect(dctx)
		return nil, fmt.Errorf("mqtt5 await connection: %w", err)
	}
	c.cm = cm
	go func() {
		<-cm.Done()
		c.done.Close(core.ErrClosed)
	}()
	return c, nil
}

type connection struct {
	provider *Provider
	cm       *autopaho.ConnectionManager
	done     *base.Done

	mu        sync.Mutex
	consumers []*consumer
	next      int
}

func (c *connection) Session(ctx context.Context, opts core.SessionOptions) (core.Session, error) {
	if c.done.Closed() {
		return nil, core.ErrClosed
	}
	return &session{conn: c, ledger: base.NewLedger(opts)}, nil
}

func (c *connection) Done() <-chan struct{} { return c.done.C() }

func (c *connection) Close() error {
	if c.done.Closed() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.cm.Disconnect(ctx)
	c.done.Close(core.ErrClosed)
	return err
}

// dispatch hands an inbound publish to every topic consumer whose filter
// matches and to one matching queue consumer.
func (c *connection) dispatch(pub *paho.Publish) bool {
	c.mu.Lock()
	var targets []*consumer
	var queued []*consumer
	for _, k := range c.consumers {
		if !TopicMatches(k.filter, pub.Topic) {
			continue
		}
		if k.shared {
			queued = append(queued, k)
		} else {
			targets = append(targets, k)
		}
	}
	if len(queued) > 0 {
		c.next++
		targets = append(targets, queued[c.next%len(queued)])
	}
	c.mu.Unlock()
	for _, k := range targets {
		k.offer(pub)
	}
	return len(targets) > 0
}

func (c *connection) add(k *consumer) {
	c.mu.Lock()
	c.consumers = append(c.consumers, k)
	c.mu.Unlock()
}

func (c *connection) remove(k *consumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.consumers {
		if x == k {
			c.consumers = append(c.consumers[:i], c.consumers[i+1:]...)
			return
		}
	}
}

// subscription is the filter sent to the broker for a consumer of dest.
func (p *Provider) subscription(dest core.Destination) (filter string, shared bool) {
	if dest.Type == core.DestinationTopic || dest.Temporary {
		return dest.Name, false
	}
	return "$share/" + p.group + "/" + dest.Name, true
}

type session struct {
	conn   *connection
	ledger *base.Ledger
}

func (s *session) Producer(ctx context.Context, dest core.Destination) (core.Producer, error) {
	if s.conn.done.Closed() {
		return nil, core.ErrClosed
	}
	if strings.ContainsAny(dest.Name, "+#") {
		return nil, &core.ConfigError{Scope: dest.Key(), Param: "destination", Err: errors.New("wildcards are not allowed when publishing")}
	}
	return &producer{session: s, dest: dest}, nil
}

func (s *session) Consumer(ctx context.Context, dest core.Destination, opts core.ConsumerOptions) (core.Consumer, error) {
	sel, err := core.ParseSelector(opts.Selector)
	if err != nil {
		return nil, &core.ConfigError{Scope: dest.Key(), Param: "selector", Err: err}
	}
	sub, shared := s.conn.provider.subscription(dest)
	k := &consumer{
		session:  s,
		dest:     dest,
		filter:   dest.Name,
		sub:      sub,
		shared:   shared,
		selector: sel,
		inbound:  make(chan *paho.Publish, inboundBuffer),
		closed:   make(chan struct{}),
	}
	s.conn.add(k)
	_, err = s.conn.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: sub, QoS: s.conn.provider.qos, NoLocal: opts.NoLocal && !shared}},
	})
	if err != nil {
		s.conn.remove(k)
		return nil, fmt.Errorf("mqtt5 subscribe %s: %w", sub, err)
	}
	return k, nil
}

func (s *session) TemporaryQueue(ctx context.Context) (core.Destination, error) {
	return core.Destination{
		Name:      temporaryPrefix + strings.ToLower(ulid.Make().String()),
		Type:      core.DestinationQueue,
		Temporary: true,
	}, nil
}

func (s *session) Transacted() bool { return s.ledger.Transacted() }

func (s *session) Commit(ctx context.Context) error { return s.ledger.Commit(ctx) }

func (s *session) Rollback(ctx context.Context) error { return s.ledger.Rollback(ctx) }

func (s *session) Acknowledge(ctx context.Context) error { return s.ledger.Acknowledge(ctx) }

func (s *session) Recover(ctx context.Context) error { return s.ledger.Recover(ctx) }

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.ledger.Close(ctx)
}

type producer struct {
	session *session
	dest    core.Destination
}

func (p *producer) Destination() core.Destination { return p.dest }

func (p *producer) Send(ctx context.Context, msg *core.Message, opts core.SendOptions) error {
	core.PrepareForSend(msg, p.dest, opts, time.Now())
	pub, err := toPublish(msg, p.dest.Name, p.session.conn.provider.qos)
	if err != nil {
		return err
	}
	return p.session.ledger.Send(ctx, func(ctx context.Context) error {
		if _, err := p.session.conn.cm.Publish(ctx, pub); err != nil {
			return fmt.Errorf("mqtt5 publish %s: %w", p.dest, err)
		}
		return nil
	})
}

func (p *producer) Close() error { return nil }

type consumer struct {
	session  *session
	dest     core.Destination
	filter   string
	sub      string
	shared   bool
	selector *core.Selector
	inbound  chan *paho.Publish

	closeOnce sync.Once
	closed    chan struct{}
}

func (k *consumer) offer(pub *paho.Publish) {
	select {
	case k.inbound <- pub:
	case <-k.closed:
	}
}

func (k *consumer) Destination() core.Destination { return k.dest }

func (k *consumer) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		wait := time.Until(deadline)
		if timeout > 0 && wait <= 0 {
			return nil, nil
		}
		if timeout <= 0 {
			wait = 0
		}
		pub, ok, err := base.Receive(ctx, k.inbound, k.closed, wait)
		if err == nil && !ok {
			return nil, nil
		}
		if err != nil {
			if k.session.conn.done.Closed() {
				return nil, core.ErrClosed
			}
			return nil, err
		}
		msg, err := fromPublish(pub, k.dest)
		if err != nil {
			return nil, &core.PoisonMessageError{Service: k.dest.Key(), Err: err}
		}
		if !k.selector.Matches(msg) {
			continue
		}
		// the client acknowledged the publish on arrival
		if err := k.session.ledger.Delivered(ctx, base.Delivery{}); err != nil {
			return nil, err
		}
		return msg, nil
	}
}

func (k *consumer) Close() error {
	var err error
	k.closeOnce.Do(func() {
		close(k.closed)
		k.session.conn.remove(k)
		if k.session.conn.done.Closed() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = k.session.conn.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{k.sub}})
	})
	return err
}

// TopicMatches reports whether an MQTT topic filter matches a topic name.
func TopicMatches(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
