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

package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

type State int

const (
	StateCreated State = iota
	StateStarting
	StateRunning
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "created"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const defaultRetryInterval = time.Second

// TaskManager runs the polling tasks of one service. Each task owns its
// session and consumer; the manager only coordinates their lifecycle.
type TaskManager struct {
	binding  *routing.Binding
	factory  *jms.ConnectionFactory
	receiver *Receiver
	txm      core.TransactionManager
	logger   *slog.Logger
	onState  func(State)
	retry    time.Duration

	mu         sync.Mutex
	cond       *sync.Cond
	state      State
	runCtx     context.Context
	cancelRun  context.CancelFunc
	pullCtx    context.Context
	cancelPull context.CancelFunc
	attached   int
	entered    int
	inflight   int
	wg         sync.WaitGroup
}

func NewTaskManager(b *routing.Binding, f *jms.ConnectionFactory, r *Receiver, txm core.TransactionManager, logger *slog.Logger) *TaskManager {
	m := &TaskManager{
		binding:  b,
		factory:  f,
		receiver: r,
		txm:      txm,
		logger: logger.With(
			"service", b.Service,
			"destination", b.Destination.Name,
			"destination_type", b.Destination.Type.String(),
		),
		retry: defaultRetryInterval,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// OnStateChange registers fn to be called after each transition, with the
// manager locked. fn must not call back into the manager and must be set
// before Start.
func (m *TaskManager) OnStateChange(fn func(State)) {
	m.onState = fn
}

func (m *TaskManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attached is the number of tasks that currently hold a consumer.
func (m *TaskManager) Attached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached
}

// Ready reports whether the service is consuming: a topic needs an attached
// subscriber, a queue needs any task to have entered its receive loop.
func (m *TaskManager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyLocked()
}

func (m *TaskManager) readyLocked() bool {
	if m.binding.Destination.Type == core.DestinationTopic {
		return m.attached > 0
	}
	return m.entered > 0
}

func (m *TaskManager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.cond.Broadcast()
	m.logger.Info("service state changed", "state", s.String())
	if m.onState != nil {
		m.onState(s)
	}
}

func (m *TaskManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCreated && m.state != StateStopped {
		return fmt.Errorf("start service %s: already %s", m.binding.Service, m.state)
	}
	m.runCtx, m.cancelRun = context.WithCancel(ctx)
	m.pullCtx, m.cancelPull = context.WithCancel(m.runCtx)
	m.attached, m.entered, m.inflight = 0, 0, 0
	m.setStateLocked(StateStarting)

	// Wake paused tasks when the parent context ends.
	context.AfterFunc(m.runCtx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	for i := 0; i < m.binding.Concurrency; i++ {
		m.wg.Add(1)
		go m.run(m.runCtx, i)
	}
	return nil
}

// Pause stops tasks from pulling new messages. In-flight messages finish
// and sessions stay open.
func (m *TaskManager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateStarting && m.state != StateRunning {
		return
	}
	m.cancelPull()
	m.setStateLocked(StatePaused)
}

func (m *TaskManager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePaused {
		return
	}
	m.pullCtx, m.cancelPull = context.WithCancel(m.runCtx)
	if m.readyLocked() {
		m.setStateLocked(StateRunning)
	} else {
		m.setStateLocked(StateStarting)
	}
}

// Stop ends every task and waits for them to release their resources.
// Stopping a stopped manager does nothing.
func (m *TaskManager) Stop() {
	m.mu.Lock()
	switch m.state {
	case StateCreated:
		m.setStateLocked(StateStopped)
		m.mu.Unlock()
		return
	case StateStopped:
		m.mu.Unlock()
		return
	case StateStopping:
		for m.state != StateStopped {
			m.cond.Wait()
		}
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateStopping)
	m.cancelRun()
	m.mu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	m.attached, m.entered = 0, 0
	m.setStateLocked(StateStopped)
	m.mu.Unlock()
}

// WaitIdle blocks until no message is being processed or ctx ends.
func (m *TaskManager) WaitIdle(ctx context.Context) error {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		m.mu.Lock()
		idle := m.inflight == 0
		m.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// pull blocks while the manager is paused and returns the context receives
// should use. It returns false once the manager is stopping.
func (m *TaskManager) pull(ctx context.Context) (context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.state == StatePaused && ctx.Err() == nil {
		m.cond.Wait()
	}
	if ctx.Err() != nil || m.state == StateStopping || m.state == StateStopped {
		return nil, false
	}
	return m.pullCtx, true
}

type pollingTask struct {
	id       int
	conn     core.Connection
	session  *jms.SessionHandle
	consumer core.Consumer
	entered  bool
}

func (m *TaskManager) run(ctx context.Context, id int) {
	defer m.wg.Done()
	t := &pollingTask{id: id}
	logger := m.logger.With("task", id)
	defer m.release(t, logger)

	for {
		pctx, ok := m.pull(ctx)
		if !ok {
			return
		}
		if t.consumer == nil {
			if err := m.attach(ctx, t); err != nil {
				m.release(t, logger)
				if ctx.Err() != nil {
					return
				}
				logger.Warn("consumer setup failed, retrying", "retry_in", m.retry, "error", err)
				if sleepCtx(ctx, m.retry) != nil {
					return
				}
				continue
			}
		}
		if !t.entered {
			t.entered = true
			m.mu.Lock()
			m.entered++
			if m.state == StateStarting && m.readyLocked() {
				m.setStateLocked(StateRunning)
			}
			m.mu.Unlock()
		}

		msg, err := t.consumer.Receive(pctx, m.binding.ReceiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if pctx.Err() != nil {
				continue
			}
			logger.Warn("receive failed, reopening consumer", "error", err)
			m.release(t, logger)
			continue
		}
		if msg == nil {
			continue
		}
		m.dispatch(ctx, t, msg, logger)
	}
}

func (m *TaskManager) attach(ctx context.Context, t *pollingTask) error {
	var err error
	if m.binding.Durable {
		t.conn, err = m.factory.CreateConnection(ctx, m.binding.ClientID)
	} else {
		t.conn, err = m.factory.Connection(ctx)
	}
	if err != nil {
		return err
	}
	if t.session, err = m.factory.CreateSession(ctx, t.conn, m.binding.SessionOptions()); err != nil {
		return err
	}
	dest, err := m.factory.Destination(m.binding.Destination.Name, m.binding.Destination.Type)
	if err != nil {
		return err
	}
	err = t.session.Do(func(s core.Session) error {
		var err error
		t.consumer, err = s.Consumer(ctx, dest, m.binding.ConsumerOptions())
		return err
	})
	if err != nil {
		t.consumer = nil
		return &core.TransientBrokerError{Factory: m.factory.Name(), Op: "consumer", Err: err}
	}

	m.mu.Lock()
	m.attached++
	if m.state == StateStarting && m.readyLocked() {
		m.setStateLocked(StateRunning)
	}
	m.mu.Unlock()
	return nil
}

// release closes what the task opened. The factory's cached connection is
// left to the factory.
func (m *TaskManager) release(t *pollingTask, logger *slog.Logger) {
	var errs []error
	if t.consumer != nil {
		if err := t.consumer.Close(); err != nil {
			errs = append(errs, &core.ResourceCleanupError{Resource: "consumer", Err: err})
		}
		t.consumer = nil
		m.mu.Lock()
		m.attached--
		m.mu.Unlock()
	}
	if t.session != nil {
		if err := t.session.Close(); err != nil {
			errs = append(errs, &core.ResourceCleanupError{Resource: "session", Err: err})
		}
		t.session = nil
	}
	if t.conn != nil {
		if !m.factory.OwnsConnection(t.conn) {
			if err := t.conn.Close(); err != nil {
				errs = append(errs, &core.ResourceCleanupError{Resource: "connection", Err: err})
			}
		}
		t.conn = nil
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("task cleanup failed", "error", err)
	}
}

func (m *TaskManager) dispatch(ctx context.Context, t *pollingTask, msg *core.Message, logger *slog.Logger) {
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	var tx core.Transaction
	if m.binding.Transactionality == routing.TxJTA && m.txm != nil {
		var err error
		if tx, err = m.txm.Begin(ctx); err != nil {
			logger.Error("transaction begin failed", "message_id", msg.MessageID, "error", err)
			tx = nil
		}
	}

	commit := m.receiver.OnMessage(ctx, msg, tx)
	if err := m.complete(ctx, t, tx, commit); err != nil {
		logger.Error("completing delivery failed",
			"message_id", msg.MessageID,
			"correlation_id", msg.CorrelationID,
			"commit", commit,
			"error", err,
		)
	}
}

// complete settles the delivery: through the JTA transaction when there is
// one, else the session transaction, else client acknowledgement.
func (m *TaskManager) complete(ctx context.Context, t *pollingTask, tx core.Transaction, commit bool) error {
	ctx = context.WithoutCancel(ctx)
	if tx != nil {
		if commit {
			return tx.Commit(ctx)
		}
		return tx.Rollback(ctx)
	}
	return t.session.Do(func(s core.Session) error {
		switch {
		case s.Transacted():
			if commit {
				return s.Commit(ctx)
			}
			return s.Rollback(ctx)
		case m.binding.AckMode == core.AckClient:
			if commit {
				return s.Acknowledge(ctx)
			}
			return s.Recover(ctx)
		}
		return nil
	})
}
