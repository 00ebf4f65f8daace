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

// Package memory is an in-process broker used for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins"
)

var ErrBrokerDown = errors.New("memory broker unavailable")

type envelope struct {
	msg    *core.Message
	origin uint64
}

type queue struct {
	items     []envelope
	signal    chan struct{}
	consumers int
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{})}
}

func (q *queue) notify() {
	close(q.signal)
	q.signal = make(chan struct{})
}

func (q *queue) push(e envelope) {
	q.items = append(q.items, e)
	q.notify()
}

func (q *queue) pushFront(es []envelope) {
	q.items = append(append([]envelope(nil), es...), q.items...)
	q.notify()
}

func (q *queue) take(sel *core.Selector, skipOrigin uint64) (envelope, bool) {
	for i, e := range q.items {
		if skipOrigin != 0 && e.origin == skipOrigin {
			continue
		}
		if !sel.Matches(e.msg) {
			continue
		}
		q.items = append(q.items[:i:i], q.items[i+1:]...)
		return e, true
	}
	return envelope{}, false
}

type topic struct {
	subs      map[*queue]struct{}
	consumers int
}

// Broker holds every destination of one in-process broker. All state is
// guarded by mu.
type Broker struct {
	mu           sync.Mutex
	queues       map[string]*queue
	topics       map[string]*topic
	durable      map[string]*queue
	conns        map[*connection]struct{}
	down         bool
	sendFailures map[string]int
	unbound      map[string]bool
	created      map[string]int
	connects     int
	nextConnID   uint64
}

func NewBroker() *Broker {
	return &Broker{
		queues:       make(map[string]*queue),
		topics:       make(map[string]*topic),
		durable:      make(map[string]*queue),
		conns:        make(map[*connection]struct{}),
		sendFailures: make(map[string]int),
		unbound:      make(map[string]bool),
		created:      make(map[string]int),
	}
}

func (b *Broker) ProviderFunc() plugins.ProviderFunc {
	return func(url string, env map[string]string, logger *slog.Logger) (core.Provider, error) {
		return &Provider{broker: b, url: url}, nil
	}
}

// SetDown makes Connect fail and drops every open connection while true.
func (b *Broker) SetDown(down bool) {
	b.mu.Lock()
	b.down = down
	var open []*connection
	if down {
		for c := range b.conns {
			open = append(open, c)
		}
	}
	b.mu.Unlock()
	for _, c := range open {
		c.Close()
	}
}

// FailSends makes the next n sends to dest fail.
func (b *Broker) FailSends(dest core.Destination, n int) {
	b.mu.Lock()
	b.sendFailures[dest.Key()] = n
	b.mu.Unlock()
}

// RequireBinding makes sends to dest fail with core.ErrMissingBinding until a
// consumer has been opened on it at least once.
func (b *Broker) RequireBinding(dest core.Destination) {
	b.mu.Lock()
	b.unbound[dest.Key()] = true
	b.mu.Unlock()
}

func (b *Broker) ConsumersCreated(dest core.Destination) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created[dest.Key()]
}

func (b *Broker) Consumers(dest core.Destination) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if dest.Type == core.DestinationTopic {
		if t, ok := b.topics[dest.Name]; ok {
			return t.consumers
		}
		return 0
	}
	if q, ok := b.queues[dest.Name]; ok {
		return q.consumers
	}
	return 0
}

func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *Broker) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Enqueue delivers msg to dest as if an external client had sent it.
func (b *Broker) Enqueue(dest core.Destination, msg *core.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg.MessageID == "" {
		msg.MessageID = core.NewMessageID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	d := dest
	msg.Destination = &d
	b.deliver(dest, envelope{msg: msg.Clone()})
}

// Messages returns copies of the messages waiting on a queue.
func (b *Broker) Messages(dest core.Destination) []*core.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[dest.Name]
	if !ok {
		return nil
	}
	out := make([]*core.Message, 0, len(q.items))
	for _, e := range q.items {
		out = append(out, e.msg.Clone())
	}
	return out
}

func (b *Broker) Depth(dest core.Destination) int {
	return len(b.Messages(dest))
}

func (b *Broker) queue(name string) *queue {
	q, ok := b.queues[name]
	if !ok {
		q = newQueue()
		b.queues[name] = q
	}
	return q
}

func (b *Broker) topic(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{subs: make(map[*queue]struct{})}
		b.topics[name] = t
	}
	return t
}

func (b *Broker) deliver(dest core.Destination, e envelope) {
	if dest.Type == core.DestinationTopic {
		for sub := range b.topic(dest.Name).subs {
			sub.push(envelope{msg: e.msg.Clone(), origin: e.origin})
		}
		return
	}
	b.queue(dest.Name).push(e)
}

type Provider struct {
	broker *Broker
	url    string
}

func (p *Provider) Name() string { return "memory" }

func (p *Provider) Connect(ctx context.Context, opts core.ConnectOptions) (core.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := p.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects++
	if b.down {
		return nil, fmt.Errorf("connect %s: %w", p.url, ErrBrokerDown)
	}
	b.nextConnID++
	c := &connection{
		broker:   b,
		id:       b.nextConnID,
		clientID: opts.ClientID,
		done:     make(chan struct{}),
	}
	b.conns[c] = struct{}{}
	return c, nil
}

type connection struct {
	broker    *Broker
	id        uint64
	clientID  string
	done      chan struct{}
	closeOnce sync.Once
	temps     []string
}

func (c *connection) Session(ctx context.Context, opts core.SessionOptions) (core.Session, error) {
	select {
	case <-c.done:
		return nil, core.ErrClosed
	default:
	}
	ack := opts.AckMode
	if ack == 0 {
		ack = core.AckAuto
	}
	return &session{conn: c, transacted: opts.Transacted, ack: ack}, nil
}

func (c *connection) Done() <-chan struct{} { return c.done }

func (c *connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		b := c.broker
		b.mu.Lock()
		delete(b.conns, c)
		for _, name := range c.temps {
			delete(b.queues, name)
		}
		b.mu.Unlock()
	})
	return nil
}

func (c *connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

type delivery struct {
	q *queue
	e envelope
}

type pendingSend struct {
	dest core.Destination
	e    envelope
}

type session struct {
	conn       *connection
	transacted bool
	ack        core.AckMode
	closed     bool
	sends      []pendingSend
	unacked    []delivery
}

func (s *session) Producer(ctx context.Context, dest core.Destination) (core.Producer, error) {
	if s.closed || s.conn.closed() {
		return nil, core.ErrClosed
	}
	return &producer{sess: s, dest: dest}, nil
}

func (s *session) Consumer(ctx context.Context, dest core.Destination, opts core.ConsumerOptions) (core.Consumer, error) {
	if s.closed || s.conn.closed() {
		return nil, core.ErrClosed
	}
	sel, err := core.ParseSelector(opts.Selector)
	if err != nil {
		return nil, err
	}
	b := s.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created[dest.Key()]++
	delete(b.unbound, dest.Key())

	c := &consumer{sess: s, dest: dest, sel: sel}
	if dest.Type == core.DestinationTopic {
		t := b.topic(dest.Name)
		t.consumers++
		if opts.Durable {
			key := s.conn.clientID + "/" + opts.SubscriptionName
			q, ok := b.durable[key]
			if !ok {
				q = newQueue()
				b.durable[key] = q
			}
			t.subs[q] = struct{}{}
			c.q = q
			c.durable = true
		} else {
			c.q = newQueue()
			t.subs[c.q] = struct{}{}
		}
		c.topic = t
		if opts.NoLocal {
			c.skipOrigin = s.conn.id
		}
	} else {
		c.q = b.queue(dest.Name)
	}
	c.q.consumers++
	return c, nil
}

func (s *session) TemporaryQueue(ctx context.Context) (core.Destination, error) {
	if s.closed || s.conn.closed() {
		return core.Destination{}, core.ErrClosed
	}
	name := "temp-queue-" + uuid.NewString()
	b := s.conn.broker
	b.mu.Lock()
	b.queue(name)
	s.conn.temps = append(s.conn.temps, name)
	b.mu.Unlock()
	return core.Destination{Name: name, Type: core.DestinationQueue, Temporary: true}, nil
}

func (s *session) Transacted() bool { return s.transacted }

func (s *session) Commit(ctx context.Context) error {
	if !s.transacted {
		return fmt.Errorf("commit on non-transacted session: %w", core.ErrUnsupported)
	}
	return s.settle(true)
}

func (s *session) Rollback(ctx context.Context) error {
	if !s.transacted {
		return fmt.Errorf("rollback on non-transacted session: %w", core.ErrUnsupported)
	}
	return s.settle(false)
}

func (s *session) Acknowledge(ctx context.Context) error {
	return s.settle(true)
}

func (s *session) Recover(ctx context.Context) error {
	return s.settle(false)
}

func (s *session) settle(commit bool) error {
	if s.closed {
		return core.ErrClosed
	}
	b := s.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if commit {
		for _, p := range s.sends {
			b.deliver(p.dest, p.e)
		}
	} else {
		requeue := make(map[*queue][]envelope)
		var order []*queue
		for _, d := range s.unacked {
			if _, ok := requeue[d.q]; !ok {
				order = append(order, d.q)
			}
			d.e.msg.Redelivered = true
			requeue[d.q] = append(requeue[d.q], d.e)
		}
		for _, q := range order {
			q.pushFront(requeue[q])
		}
	}
	s.sends = nil
	s.unacked = nil
	return nil
}

func (s *session) tracks() bool {
	return s.transacted || s.ack == core.AckClient
}

// Close rolls back whatever the session has not committed or acknowledged.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	if s.tracks() {
		s.settle(false)
	}
	b := s.conn.broker
	b.mu.Lock()
	s.closed = true
	b.mu.Unlock()
	return nil
}

type producer struct {
	sess   *session
	dest   core.Destination
	closed bool
}

func (p *producer) Destination() core.Destination { return p.dest }

func (p *producer) Send(ctx context.Context, msg *core.Message, opts core.SendOptions) error {
	if p.closed || p.sess.closed || p.sess.conn.closed() {
		return core.ErrClosed
	}
	b := p.sess.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	key := p.dest.Key()
	if n := b.sendFailures[key]; n > 0 {
		b.sendFailures[key] = n - 1
		return fmt.Errorf("send to %s: %w", key, core.ErrMissingBinding)
	}
	if b.unbound[key] {
		return fmt.Errorf("send to %s: %w", key, core.ErrMissingBinding)
	}
	core.PrepareForSend(msg, p.dest, opts, time.Now())
	e := envelope{msg: msg.Clone(), origin: p.sess.conn.id}
	if p.sess.transacted {
		p.sess.sends = append(p.sess.sends, pendingSend{dest: p.dest, e: e})
		return nil
	}
	b.deliver(p.dest, e)
	return nil
}

func (p *producer) Close() error {
	p.closed = true
	return nil
}

type consumer struct {
	sess       *session
	dest       core.Destination
	sel        *core.Selector
	q          *queue
	topic      *topic
	durable    bool
	skipOrigin uint64
	closed     bool
}

func (c *consumer) Destination() core.Destination { return c.dest }

func (c *consumer) Receive(ctx context.Context, timeout time.Duration) (*core.Message, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	b := c.sess.conn.broker
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.mu.Lock()
		if c.closed || c.sess.closed || c.sess.conn.closed() {
			b.mu.Unlock()
			return nil, core.ErrClosed
		}
		e, ok := c.q.take(c.sel, c.skipOrigin)
		wait := c.q.signal
		if ok {
			if c.sess.tracks() {
				c.sess.unacked = append(c.sess.unacked, delivery{q: c.q, e: e})
			}
			b.mu.Unlock()
			return e.msg.Clone(), nil
		}
		b.mu.Unlock()

		select {
		case <-wait:
		case <-timer:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.sess.conn.done:
			return nil, core.ErrClosed
		}
	}
}

func (c *consumer) Close() error {
	b := c.sess.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.q.consumers--
	if c.topic != nil {
		c.topic.consumers--
		if !c.durable {
			delete(c.topic.subs, c.q)
		}
	}
	return nil
}
