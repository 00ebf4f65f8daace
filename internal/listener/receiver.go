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
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/faultstore"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/metrics"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/codec"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// Replier sends the engine's synchronous response back to the requester.
type Replier interface {
	Reply(ctx context.Context, req *core.RequestContext, reply *core.Payload, contentType string) error
}

// Receiver hands messages polled for one service to the engine.
type Receiver struct {
	binding   *routing.Binding
	factory   *jms.ConnectionFactory
	engine    core.Engine
	codec     codec.Codec
	metrics   *metrics.Collector
	faults    faultstore.Store
	replier   Replier
	tracer    *logging.Tracer
	bodyLimit int
	logger    *slog.Logger
	now       func() time.Time
}

type ReceiverOptions struct {
	Engine    core.Engine
	Codec     codec.Codec
	Metrics   *metrics.Collector
	Faults    faultstore.Store
	Replier   Replier
	Tracer    *logging.Tracer
	BodyLimit int
	Logger    *slog.Logger
}

func NewReceiver(b *routing.Binding, f *jms.ConnectionFactory, opts ReceiverOptions) *Receiver {
	r := &Receiver{
		binding:   b,
		factory:   f,
		engine:    opts.Engine,
		codec:     opts.Codec,
		metrics:   opts.Metrics,
		faults:    opts.Faults,
		replier:   opts.Replier,
		tracer:    opts.Tracer,
		bodyLimit: opts.BodyLimit,
		logger: opts.Logger.With(
			"service", b.Service,
			"destination", b.Destination.Name,
			"destination_type", b.Destination.Type.String(),
		),
		now: time.Now,
	}
	if r.codec == nil {
		r.codec = codec.Default{}
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	return r
}

// OnMessage processes msg and reports whether the delivery should be
// committed. Exactly one of the received or fault counters moves per call.
func (r *Receiver) OnMessage(ctx context.Context, msg *core.Message, tx core.Transaction) (commit bool) {
	svc := r.binding.Service
	faulted := true
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("message dispatch panic recovered",
				"message_id", msg.MessageID, "correlation_id", msg.CorrelationID, "error", p)
			commit, faulted = false, true
		}
		if faulted {
			r.metrics.IncFaultsReceiving(svc)
		} else {
			r.metrics.IncMessagesReceived(svc)
		}
	}()

	headers := jms.TransportHeaders(msg)
	size := msg.Size()
	r.metrics.AddBytesReceived(svc, size)

	if msg.Expired(r.now()) {
		r.logger.Debug("discarding expired message",
			"message_id", msg.MessageID, "expiration", msg.Expiration)
		faulted = false
		return true
	}

	if limit := r.binding.MaxMessageSize; limit > 0 && size > limit {
		r.poison(ctx, msg, headers, nil, fmt.Errorf("%d bytes over limit %d: %w", size, limit, core.ErrMessageTooLarge))
		return false
	}

	info, err := r.binding.ContentTypes.Resolve(msg)
	if err != nil {
		r.poison(ctx, msg, headers, nil, err)
		return false
	}
	r.tracer.Received(svc, msg, info.ContentType)

	payload, err := r.codec.Decode(msg, info.ContentType)
	if err != nil {
		r.poison(ctx, msg, headers, nil, err)
		return false
	}

	req := &core.RequestContext{
		Service:             svc,
		Message:             msg,
		Payload:             payload,
		ContentType:         info.ContentType,
		ReplyTo:             r.replyTo(msg),
		ConnectionFactory:   r.factory.Name(),
		ContentTypeProperty: info.Property,
		Headers:             headers,
		Transaction:         tx,
	}
	if req.ContentTypeProperty == "" {
		req.ContentTypeProperty = r.binding.ContentTypeProperty
	}
	action, _ := msg.StringProperty(jms.SOAPAction)

	res, err := r.engine.HandleIncomingMessage(ctx, req, headers, action, info.ContentType)
	if err != nil {
		var poison *core.PoisonMessageError
		if errors.As(err, &poison) {
			r.poison(ctx, msg, headers, req, err)
			return false
		}
		r.logger.Error("engine rejected message",
			"message_id", msg.MessageID, "correlation_id", msg.CorrelationID, "error", err)
		return false
	}

	if res != nil && res.Reply != nil {
		if err := r.reply(ctx, req, res); err != nil {
			r.logger.Error("reply failed",
				"message_id", msg.MessageID, "correlation_id", req.CorrelationID(), "error", err)
			req.SetRollbackOnly()
		}
	}

	faulted = false
	if req.RollbackOnly() {
		r.logger.Debug("engine requested rollback", "message_id", msg.MessageID)
		return false
	}
	return true
}

// replyTo prefers the message's own reply destination over the binding's.
func (r *Receiver) replyTo(msg *core.Message) *core.Destination {
	if msg.ReplyTo != nil {
		return msg.ReplyTo
	}
	rd := r.binding.ReplyDestination
	if rd == nil {
		return nil
	}
	d, err := r.factory.Destination(rd.Name, rd.Type)
	if err != nil {
		r.logger.Warn("reply destination unresolved", "reply_destination", rd.Name, "error", err)
		return nil
	}
	return &d
}

func (r *Receiver) reply(ctx context.Context, req *core.RequestContext, res *core.EngineResult) error {
	if req.ReplyTo == nil {
		r.logger.Warn("engine produced a reply but the message has no reply destination",
			"message_id", req.Message.MessageID)
		return nil
	}
	if r.replier == nil {
		return fmt.Errorf("reply to %s: %w", req.ReplyTo, core.ErrUnsupported)
	}
	ct := res.ReplyContentType
	if ct == "" {
		ct = req.ContentType
	}
	return r.replier.Reply(ctx, req, res.Reply, ct)
}

func (r *Receiver) poison(ctx context.Context, msg *core.Message, headers map[string]any, req *core.RequestContext, cause error) {
	var err error = &core.PoisonMessageError{Service: r.binding.Service, MessageID: msg.MessageID, Err: cause}
	if errors.As(cause, new(*core.PoisonMessageError)) {
		err = cause
	}
	r.logger.Error("poison message",
		"message_id", msg.MessageID, "correlation_id", msg.CorrelationID, "error", err)

	if r.faults != nil {
		f := faultstore.NewFault(r.binding.Service, r.binding.Destination, msg, headers, err, r.bodyLimit)
		if ferr := r.faults.Record(ctx, f); ferr != nil {
			r.logger.Warn("fault journal write failed", "message_id", msg.MessageID, "error", ferr)
		}
	}
	if fh, ok := r.engine.(core.FaultHandler); ok {
		if req == nil {
			req = &core.RequestContext{
				Service:           r.binding.Service,
				Message:           msg,
				Headers:           headers,
				ConnectionFactory: r.factory.Name(),
			}
		}
		fh.HandleFault(ctx, req, err)
	}
}
