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

// Package sender writes messages to destinations, either for services
// replying to requests or for engine-initiated sends to jms:/ addresses.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/metrics"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// SendContext carries per-send overrides and the transaction the send takes
// part in.
type SendContext struct {
	DeliveryMode core.DeliveryMode
	// Priority applies when HasPriority is set, since zero is a valid
	// priority.
	Priority    int
	HasPriority bool
	TimeToLive  time.Duration
	// Transaction is committed or rolled back by Send and then cleared.
	Transaction  core.Transaction
	RollbackOnly bool
}

type Options struct {
	// OneShot factories are stopped when the sender closes.
	OneShot       bool
	BindingRepair bool
	Metrics       *metrics.Collector
	Tracer        *logging.Tracer
	Logger        *slog.Logger
}

// MessageSender sends to one destination through a factory's connection,
// session and producer.
type MessageSender struct {
	factory  *jms.ConnectionFactory
	dest     core.Destination
	conn     core.Connection
	session  *jms.SessionHandle
	producer core.Producer
	opts     Options
	logger   *slog.Logger
}

func NewMessageSender(ctx context.Context, f *jms.ConnectionFactory, dest core.Destination, opts Options) (*MessageSender, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &MessageSender{
		factory: f,
		dest:    dest,
		opts:    opts,
		logger: opts.Logger.With(
			"connection_factory", f.Name(),
			"destination", dest.Name,
			"destination_type", dest.Type.String(),
		),
	}
	var err error
	if s.conn, err = f.Connection(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if s.session, err = f.Session(ctx, s.conn); err != nil {
		s.Close()
		return nil, err
	}
	if s.producer, err = f.Producer(ctx, s.session, dest); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *MessageSender) Destination() core.Destination { return s.dest }

func (s *MessageSender) Connection() core.Connection { return s.conn }

// Send delivers msg and settles the surrounding transaction. Failures come
// back as *core.SendError after being logged.
func (s *MessageSender) Send(ctx context.Context, msg *core.Message, sc *SendContext) error {
	opts := core.SendOptions{DeliveryMode: core.Persistent, Priority: core.DefaultPriority}
	rollbackOnly := false
	if sc != nil {
		if sc.DeliveryMode != 0 {
			opts.DeliveryMode = sc.DeliveryMode
		}
		if sc.HasPriority {
			opts.Priority = sc.Priority
		}
		opts.TimeToLive = sc.TimeToLive
		rollbackOnly = sc.RollbackOnly
	}

	err := s.send(ctx, msg, opts)
	if err != nil && s.dest.Type == core.DestinationQueue && s.opts.BindingRepair {
		s.logger.Warn("send failed, repairing destination binding and retrying once", "error", err)
		if rerr := s.repairBinding(ctx); rerr != nil {
			s.logger.Warn("binding repair failed", "error", rerr)
		}
		err = s.send(ctx, msg, opts)
	}

	var tx core.Transaction
	if sc != nil {
		tx, sc.Transaction = sc.Transaction, nil
	}
	if cerr := s.settle(ctx, tx, err == nil && !rollbackOnly); err == nil {
		err = cerr
	} else if cerr != nil {
		s.logger.Warn("rollback after failed send failed", "error", cerr)
	}

	if err != nil {
		s.opts.Metrics.IncFaultsSending(s.dest.Key())
		serr := &core.SendError{Destination: s.dest, Err: err}
		s.logger.Error("send failed",
			"message_id", msg.MessageID,
			"correlation_id", msg.CorrelationID,
			"error", serr,
		)
		return serr
	}
	s.opts.Metrics.IncMessagesSent(s.dest.Key())
	s.opts.Metrics.AddBytesSent(s.dest.Key(), msg.Size())
	s.opts.Tracer.Sent(s.dest, msg)
	return nil
}

func (s *MessageSender) send(ctx context.Context, msg *core.Message, opts core.SendOptions) error {
	return s.session.Do(func(core.Session) error {
		return s.producer.Send(ctx, msg, opts)
	})
}

// repairBinding opens and closes a consumer so brokers that create queue
// bindings lazily materialise the destination.
func (s *MessageSender) repairBinding(ctx context.Context) error {
	return s.session.Do(func(sess core.Session) error {
		c, err := sess.Consumer(ctx, s.dest, core.ConsumerOptions{})
		if err != nil {
			return err
		}
		return c.Close()
	})
}

// settle commits or rolls back: the JTA transaction when there is one,
// otherwise the session when it is transacted.
func (s *MessageSender) settle(ctx context.Context, tx core.Transaction, commit bool) error {
	ctx = context.WithoutCancel(ctx)
	if tx != nil {
		if commit {
			return tx.Commit(ctx)
		}
		return tx.Rollback(ctx)
	}
	return s.session.Do(func(sess core.Session) error {
		if !sess.Transacted() {
			return nil
		}
		if commit {
			return sess.Commit(ctx)
		}
		return sess.Rollback(ctx)
	})
}

// Close releases whatever the factory does not cache. It is safe to call
// after a failed Send and more than once.
func (s *MessageSender) Close() {
	var errs []error
	if s.producer != nil && !s.factory.OwnsProducer(s.producer) {
		if err := s.producer.Close(); err != nil {
			errs = append(errs, &core.ResourceCleanupError{Resource: "producer", Err: err})
		}
	}
	s.producer = nil
	if s.session != nil && !s.factory.OwnsSession(s.session) {
		if err := s.session.Close(); err != nil {
			errs = append(errs, &core.ResourceCleanupError{Resource: "session", Err: err})
		}
	}
	s.session = nil
	if s.conn != nil && !s.factory.OwnsConnection(s.conn) {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, &core.ResourceCleanupError{Resource: "connection", Err: err})
		}
	}
	s.conn = nil
	if s.opts.OneShot {
		s.factory.Stop()
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("sender cleanup failed", "error", err)
	}
}
