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

// Package base holds the settlement and lifecycle pieces the broker
// providers share.
package base

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// Delivery settles one received message with the broker.
type Delivery struct {
	Ack  func(ctx context.Context) error
	Nack func(ctx context.Context) error
}

// Ledger tracks what a session owes the broker. Transacted sessions hold
// sends until Commit; transacted and client-acknowledge sessions hold
// deliveries until Commit or Acknowledge. Everything else settles at once.
type Ledger struct {
	transacted bool
	ack        core.AckMode

	mu        sync.Mutex
	sends     []func(ctx context.Context) error
	delivered []Delivery
	closed    bool
}

func NewLedger(opts core.SessionOptions) *Ledger {
	ack := opts.AckMode
	if ack == 0 {
		ack = core.AckAuto
	}
	return &Ledger{transacted: opts.Transacted, ack: ack}
}

func (l *Ledger) Transacted() bool { return l.transacted }

func (l *Ledger) tracks() bool {
	return l.transacted || l.ack == core.AckClient
}

// Send runs fn now, or at Commit when the session is transacted.
func (l *Ledger) Send(ctx context.Context, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return core.ErrClosed
	}
	if l.transacted {
		l.sends = append(l.sends, fn)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return fn(ctx)
}

// Delivered records a received message, acknowledging it right away when
// the session does not track deliveries.
func (l *Ledger) Delivered(ctx context.Context, d Delivery) error {
	l.mu.Lock()
	if l.tracks() {
		l.delivered = append(l.delivered, d)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	if d.Ack == nil {
		return nil
	}
	return d.Ack(ctx)
}

func (l *Ledger) take() ([]func(ctx context.Context) error, []Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, nil, core.ErrClosed
	}
	sends, delivered := l.sends, l.delivered
	l.sends, l.delivered = nil, nil
	return sends, delivered, nil
}

// Commit flushes held sends in order and acknowledges held deliveries. A
// failing send stops the flush; the deliveries are then released back to
// the broker.
func (l *Ledger) Commit(ctx context.Context) error {
	if !l.transacted {
		return fmt.Errorf("commit on non-transacted session: %w", core.ErrUnsupported)
	}
	sends, delivered, err := l.take()
	if err != nil {
		return err
	}
	for _, fn := range sends {
		if err := fn(ctx); err != nil {
			return errors.Join(err, settle(ctx, delivered, false))
		}
	}
	return settle(ctx, delivered, true)
}

func (l *Ledger) Rollback(ctx context.Context) error {
	if !l.transacted {
		return fmt.Errorf("rollback on non-transacted session: %w", core.ErrUnsupported)
	}
	_, delivered, err := l.take()
	if err != nil {
		return err
	}
	return settle(ctx, delivered, false)
}

func (l *Ledger) Acknowledge(ctx context.Context) error {
	_, delivered, err := l.take()
	if err != nil {
		return err
	}
	return settle(ctx, delivered, true)
}

func (l *Ledger) Recover(ctx context.Context) error {
	_, delivered, err := l.take()
	if err != nil {
		return err
	}
	return settle(ctx, delivered, false)
}

// Close releases unsettled deliveries and drops held sends. It is safe to
// call more than once.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	delivered := l.delivered
	l.sends, l.delivered, l.closed = nil, nil, true
	l.mu.Unlock()
	return settle(ctx, delivered, false)
}

func (l *Ledger) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func settle(ctx context.Context, ds []Delivery, ack bool) error {
	var errs []error
	for _, d := range ds {
		fn := d.Nack
		if ack {
			fn = d.Ack
		}
		if fn == nil {
			continue
		}
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
