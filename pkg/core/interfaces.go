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

package core

import (
	"context"
	"sync/atomic"
	"time"
)

type ConnectOptions struct {
	Username string
	Password string
	ClientID string
	Kind     ConnectionKind
}

// Provider is one broker family. Implementations live under pkg/plugins.
type Provider interface {
	Name() string
	Connect(ctx context.Context, opts ConnectOptions) (Connection, error)
}

type Connection interface {
	Session(ctx context.Context, opts SessionOptions) (Session, error)
	// Done is closed once the connection is no longer usable.
	Done() <-chan struct{}
	Close() error
}

type SessionOptions struct {
	Transacted bool
	AckMode    AckMode
}

type ConsumerOptions struct {
	Selector         string
	NoLocal          bool
	Durable          bool
	SubscriptionName string
}

// Session is not safe for concurrent use.
type Session interface {
	Producer(ctx context.Context, dest Destination) (Producer, error)
	Consumer(ctx context.Context, dest Destination, opts ConsumerOptions) (Consumer, error)
	TemporaryQueue(ctx context.Context) (Destination, error)
	Transacted() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Acknowledge(ctx context.Context) error
	Recover(ctx context.Context) error
	Close() error
}

type SendOptions struct {
	DeliveryMode DeliveryMode
	Priority     int
	TimeToLive   time.Duration
}

type Producer interface {
	Destination() Destination
	Send(ctx context.Context, msg *Message, opts SendOptions) error
	Close() error
}

type Consumer interface {
	Destination() Destination
	// Receive returns (nil, nil) when timeout elapses without a message.
	Receive(ctx context.Context, timeout time.Duration) (*Message, error)
	Close() error
}

type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// RequestContext carries one inbound message through the engine.
type RequestContext struct {
	Service             string
	Message             *Message
	Payload             *Payload
	ContentType         string
	ReplyTo             *Destination
	ConnectionFactory   string
	ContentTypeProperty string
	Headers             map[string]any
	// Transaction is set when the message was received under a JTA
	// transaction the engine may enlist in.
	Transaction         Transaction

	rollback atomic.Bool
}

func (r *RequestContext) SetRollbackOnly() { r.rollback.Store(true) }

func (r *RequestContext) RollbackOnly() bool { return r.rollback.Load() }

// CorrelationID is the id a reply to this request should carry.
func (r *RequestContext) CorrelationID() string {
	if r.Message == nil {
		return ""
	}
	if r.Message.CorrelationID != "" {
		return r.Message.CorrelationID
	}
	return r.Message.MessageID
}

type EngineResult struct {
	Reply            *Payload
	ReplyContentType string
}

type Engine interface {
	HandleIncomingMessage(ctx context.Context, req *RequestContext, headers map[string]any, action string, contentType string) (*EngineResult, error)
}

// FaultHandler is implemented by engines that want poison messages surfaced.
type FaultHandler interface {
	HandleFault(ctx context.Context, req *RequestContext, err error)
}
