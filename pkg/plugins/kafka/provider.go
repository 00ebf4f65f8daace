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

// Package kafka maps JMS destinations onto Kafka topics. A queue is a topic
// read by one shared consumer group; a topic subscriber gets a group of its
// own.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

const (
	EnvGroupPrefix      = "kafka.GroupPrefix"
	EnvAutoCreateTopics = "kafka.AutoCreateTopics"

	defaultGroupPrefix = "jms-bridge"
	temporaryPrefix    = "jms-bridge.tmp."
)

type Provider struct {
	brokers     []string
	groupPrefix string
	autoCreate  bool
	logger      *slog.Logger
}

// New accepts kafka://host:port[,host:port...] or a bare broker list.
func New(url string, env map[string]string, logger *slog.Logger) (core.Provider, error) {
	brokers := parseBrokers(url)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers from %q: %w", url, core.ErrNameNotFound)
	}
	p := &Provider{brokers: brokers, groupPrefix: defaultGroupPrefix, autoCreate: true, logger: logger}
	if v := env[EnvGroupPrefix]; v != "" {
		p.groupPrefix = v
	}
	if v := env[EnvAutoCreateTopics]; v != "" {
		p.autoCreate = !strings.EqualFold(v, "false")
	}
	return p, nil
}

func parseBrokers(url string) []string {
	url = strings.TrimPrefix(url, "kafka://")
	var out []string
	for _, b := range strings.Split(url, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (p *Provider) Name() string { return "kafka" }

// Connect verifies a broker is reachable. Kafka clients hold no session
// state of their own, so the connection is otherwise a holder for
// credentials.
func (p *Provider) Connect(ctx context.Context, opts core.ConnectOptions) (core.Connection, error) {
	var mech sasl.Mechanism
	if opts.Username != "" {
		mech = plain.Mechanism{Username: opts.Username, Password: opts.Password}
	}
	dialer := &kafka.Dialer{Timeout: 10 * time.Second, SASLMechanism: mech, ClientID: opts.ClientID}
	conn, err := dialer.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka dial %s: %w", p.brokers[0], err)
	}
	conn.Close()
	return &connection{
		provider: p,
		clientID: opts.ClientID,
		dialer:   dialer,
		mech:     mech,
		done:     base.NewDone(),
	}, nil
}

type connection struct {
	provider *Provider
	clientID string
	dialer   *kafka.Dialer
	mech     sasl.Mechanism
	done     *base.Done
}

func (c *connection) Session(ctx context.Context, opts core.SessionOptions) (core.Session, error) {
	if c.done.Closed() {
		return nil, core.ErrClosed
	}
	return &session{conn: c, ledger: base.NewLedger(opts)}, nil
}

func (c *connection) Done() <-chan struct{} { return c.done.C() }

func (c *connection) Close() error {
	c.done.Close(core.ErrClosed)
	return nil
}

func (c *connection) group(dest core.Destination, opts core.ConsumerOptions) string {
	prefix := c.provider.groupPrefix
	switch {
	case dest.Type != core.DestinationTopic || dest.Temporary:
		return prefix + "." + dest.Name
	case opts.Durable:
		return prefix + "." + c.clientID + "." + opts.SubscriptionName
	default:
		return prefix + "." + ulid.Make().String()
	}
}

type session struct {
	conn   *connection
	ledger *base.Ledger
}

func (s *session) Producer(ctx context.Context, dest core.Destination) (core.Producer, error) {
	if s.conn.done.Closed() {
		return nil, core.ErrClosed
	}
	transport := &kafka.Transport{SASL: s.conn.mech, ClientID: s.conn.clientID}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(s.conn.provider.brokers...),
		Topic:                  dest.Name,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: s.conn.provider.autoCreate || dest.Temporary,
		Transport:              transport,
	}
	return &producer{session: s, dest: dest, writer: w}, nil
}

func (s *session) Consumer(ctx context.Context, dest core.Destination, opts core.ConsumerOptions) (core.Consumer, error) {
	sel, err := core.ParseSelector(opts.Selector)
	if err != nil {
		return nil, &core.ConfigError{Scope: dest.Key(), Param: "selector", Err: err}
	}
	start := kafka.FirstOffset
	if dest.Type == core.DestinationTopic && !opts.Durable && !dest.Temporary {
		start = kafka.LastOffset
	}
	c := &consumer{
		session:  s,
		dest:     dest,
		selector: sel,
		config: kafka.ReaderConfig{
			Brokers:     s.conn.provider.brokers,
			GroupID:     s.conn.group(dest, opts),
			Topic:       dest.Name,
			Dialer:      s.conn.dialer,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: start,
		},
	}
	c.reader = kafka.NewReader(c.config)
	return c, nil
}

// TemporaryQueue names a fresh topic. It is created on first write when the
// cluster allows automatic topic creation.
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
	writer  *kafka.Writer
}

func (p *producer) Destination() core.Destination { return p.dest }

func (p *producer) Send(ctx context.Context, msg *core.Message, opts core.SendOptions) error {
	core.PrepareForSend(msg, p.dest, opts, time.Now())
	km, err := toKafka(msg)
	if err != nil {
		return err
	}
	return p.session.ledger.Send(ctx, func(ctx context.Context) error {
		if err := p.writer.WriteMessages(ctx, km); err != nil {
			if errors.Is(err, kafka.UnknownTopicOrPartition) {
				return fmt.Errorf("kafka write %s: %w: %w", p.dest, core.ErrMissingBinding, err)
			}
			return fmt.Errorf("kafka write %s: %w", p.dest, err)
		}
		return nil
	})
}

func (p *producer) Close() error { return p.writer.Close() }

type consumer struct {
	session  *session
	dest     core.Destination
	selector *core.Selector
	config   kafka.ReaderConfig

	mu     sync.Mutex
	reader *kafka.Reader
	// rewind is set when a delivery was released; the reader is reopened
	// so fetching resumes from the last committed offset
	rewind bool
}

func (c *consumer) Destination() core.Destination { return c.dest }

func (c *consumer) current() *kafka.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rewind {
		c.reader.Close()
		c.reader = kafka.NewReader(c.config)
		c.rewind = false
	}
	return c.reader
}

func (c *consumer) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	if c.session.conn.done.Closed() {
		return nil, core.ErrClosed
	}
	rctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	r := c.current()
	for {
		km, err := r.FetchMessage(rctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, nil
			}
			return nil, fmt.Errorf("kafka fetch %s: %w", c.dest, err)
		}
		msg, err := fromKafka(km, c.dest)
		if err != nil {
			_ = r.CommitMessages(ctx, km)
			return nil, &core.PoisonMessageError{Service: c.dest.Key(), Err: err}
		}
		if !c.selector.Matches(msg) {
			if err := r.CommitMessages(ctx, km); err != nil {
				return nil, fmt.Errorf("kafka commit %s: %w", c.dest, err)
			}
			continue
		}
		err = c.session.ledger.Delivered(ctx, base.Delivery{
			Ack: func(ctx context.Context) error { return r.CommitMessages(ctx, km) },
			Nack: func(context.Context) error {
				c.mu.Lock()
				c.rewind = true
				c.mu.Unlock()
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
		return msg, nil
	}
}

func (c *consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reader.Close()
}
