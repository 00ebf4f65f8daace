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

package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/metrics"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/codec"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const DefaultWaitReply = 30 * time.Second

// Outbound is one engine-initiated message.
type Outbound struct {
	Payload     *core.Payload
	ContentType string
	// Headers are applied to the message last, so they override anything
	// derived from the other fields.
	Headers             map[string]any
	Action              string
	CorrelationID       string
	ContentTypeProperty string

	// WaitReply blocks Send until a correlated reply arrives or the wait
	// elapses: Wait when set, else transport.jms.WaitReply from the target,
	// else DefaultWaitReply.
	WaitReply bool
	Wait      time.Duration

	Transaction  core.Transaction
	RollbackOnly bool
}

type TransportOptions struct {
	Factories *jms.Registry
	Providers jms.ProviderResolver
	// Engine receives synchronous replies as incoming messages.
	Engine  core.Engine
	Codec   codec.Codec
	Metrics *metrics.Collector
	Tracer  *logging.Tracer
	Logger  *slog.Logger
}

// Transport sends to jms:/ addresses and replies on behalf of listening
// services.
type Transport struct {
	opts   TransportOptions
	logger *slog.Logger
}

func NewTransport(opts TransportOptions) *Transport {
	if opts.Codec == nil {
		opts.Codec = codec.Default{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Transport{opts: opts, logger: opts.Logger.With("component", "sender")}
}

// resolveFactory picks the factory for target: the one named by
// transport.jms.ConnectionFactory, else one whose broker properties match,
// else the default factory. When none applies a one-shot factory is built
// from the URL and must be stopped by the caller.
func (t *Transport) resolveFactory(info *jms.OutTransportInfo) (*jms.ConnectionFactory, bool, error) {
	if t.opts.Factories != nil {
		if name, ok := info.Properties[jms.ParamConnectionFactory]; ok {
			if f, ok := t.opts.Factories.Lookup(name); ok {
				return f, false, nil
			}
			t.logger.Warn("connection factory not found, using target address properties", "connection_factory", name)
		} else if f, ok := t.opts.Factories.LookupByProperties(info.Properties); ok {
			return f, false, nil
		} else if f, ok := t.opts.Factories.Lookup(jms.DefaultFactoryName); ok {
			return f, false, nil
		}
	}
	cfg, err := jms.OneShotConfig(info)
	if err != nil {
		return nil, false, err
	}
	if t.opts.Providers == nil {
		return nil, false, &core.ConfigError{Scope: cfg.Name, Param: jms.ParamInitialContextFactory, Err: core.ErrFactoryNotFound}
	}
	return jms.NewConnectionFactory(cfg, t.opts.Providers, t.logger), true, nil
}

func bindingRepair(props map[string]string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(props[jms.ParamBindingRepair]))
	return err != nil || v
}

// Send delivers out to the jms:/ address target.
func (t *Transport) Send(ctx context.Context, target string, out *Outbound) error {
	info, err := jms.ParseURL(target)
	if err != nil {
		return &core.ConfigError{Scope: "target", Param: "url", Err: err}
	}
	f, oneShot, err := t.resolveFactory(info)
	if err != nil {
		return err
	}
	dest, err := f.Destination(info.Destination.Name, info.Destination.Type)
	if err != nil {
		if oneShot {
			f.Stop()
		}
		return err
	}
	ms, err := NewMessageSender(ctx, f, dest, Options{
		OneShot:       oneShot,
		BindingRepair: bindingRepair(info.Properties) && bindingRepair(f.Config().Properties),
		Metrics:       t.opts.Metrics,
		Tracer:        t.opts.Tracer,
		Logger:        t.logger,
	})
	if err != nil {
		if oneShot {
			f.Stop()
		}
		return err
	}
	defer ms.Close()

	msg, err := t.createMessage(out, info)
	if err != nil {
		return err
	}

	var replyDest *core.Destination
	if out.WaitReply {
		if replyDest, err = t.replyDestination(ctx, ms, info, out); err != nil {
			return err
		}
		msg.ReplyTo = replyDest
	}

	sc := &SendContext{Transaction: out.Transaction, RollbackOnly: out.RollbackOnly}
	if msg.DeliveryMode != 0 {
		sc.DeliveryMode = msg.DeliveryMode
	}
	if _, ok := out.Headers[jms.HeaderPriority]; ok {
		sc.Priority, sc.HasPriority = msg.Priority, true
	}
	if !msg.Expiration.IsZero() {
		sc.TimeToLive = time.Until(msg.Expiration)
	}
	if err := ms.Send(ctx, msg, sc); err != nil {
		return err
	}

	if replyDest == nil {
		return nil
	}
	id := msg.CorrelationID
	if id == "" {
		id = msg.MessageID
	}
	wait := out.Wait
	if wait <= 0 {
		wait = waitReply(info.Properties)
	}
	return t.awaitReply(ctx, ms, *replyDest, id, wait, info)
}

// createMessage builds the broker message for out. The body kind follows
// JMS_MESSAGE_TYPE when present, else the payload.
func (t *Transport) createMessage(out *Outbound, info *jms.OutTransportInfo) (*core.Message, error) {
	kind := core.BodyBytes
	if out.Payload != nil {
		kind = out.Payload.Kind
	}
	if v, ok := out.Headers[jms.HeaderMessageType]; ok {
		k, err := parseMessageType(core.FormatValue(v))
		if err != nil {
			return nil, &core.ConfigError{Scope: info.Destination.Name, Param: jms.HeaderMessageType, Err: err}
		}
		kind = k
	}
	msg, err := t.opts.Codec.Encode(out.Payload, kind)
	if err != nil {
		return nil, &core.SendError{Destination: info.Destination, Err: err}
	}

	prop := out.ContentTypeProperty
	if prop == "" {
		prop = info.ContentTypeProperty
	}
	if prop != "" && out.ContentType != "" {
		msg.SetProperty(prop, out.ContentType)
	}
	msg.CorrelationID = out.CorrelationID
	if v, ok := out.Headers[jms.HeaderCorrelationID]; ok {
		msg.CorrelationID = core.FormatValue(v)
	}
	if out.Action != "" {
		msg.SetProperty(jms.SOAPAction, out.Action)
	}
	if ignored := jms.ApplyTransportHeaders(msg, out.Headers); len(ignored) > 0 {
		t.logger.Warn("transport headers not applied", "destination", info.Destination.Name, "headers", ignored)
	}
	return msg, nil
}

func parseMessageType(s string) (core.BodyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "textmessage":
		return core.BodyText, nil
	case "bytes", "bytesmessage":
		return core.BodyBytes, nil
	case "map", "mapmessage":
		return core.BodyMap, nil
	default:
		return 0, fmt.Errorf("unknown message type %q", s)
	}
}

func waitReply(props map[string]string) time.Duration {
	v := strings.TrimSpace(props[jms.ParamWaitReply])
	if v == "" {
		return DefaultWaitReply
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	return DefaultWaitReply
}

// replyDestination is the JMS_REPLY_TO header, the target's reply
// destination, the factory's reply destination or a temporary queue, in
// that order.
func (t *Transport) replyDestination(ctx context.Context, ms *MessageSender, info *jms.OutTransportInfo, out *Outbound) (*core.Destination, error) {
	f := ms.factory
	if v, ok := out.Headers[jms.HeaderReplyTo]; ok {
		d, err := destinationFromHeader(f, core.FormatValue(v))
		if err != nil {
			return nil, err
		}
		return &d, nil
	}
	if info.ReplyDestination != nil {
		d, err := f.Destination(info.ReplyDestination.Name, info.ReplyDestination.Type)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}
	if d, ok := f.ReplyDestination(); ok {
		return &d, nil
	}
	var tmp core.Destination
	err := ms.session.Do(func(sess core.Session) error {
		var err error
		tmp, err = sess.TemporaryQueue(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create temporary reply queue: %w", err)
	}
	return &tmp, nil
}

// destinationFromHeader accepts a bare name or the queue:// and topic://
// forms TransportHeaders produces.
func destinationFromHeader(f *jms.ConnectionFactory, v string) (core.Destination, error) {
	t := core.DestinationQueue
	if kind, name, ok := strings.Cut(v, "://"); ok {
		pt, err := core.ParseDestinationType(kind, core.DestinationQueue)
		if err != nil {
			return core.Destination{}, err
		}
		t, v = pt, name
	}
	return f.Destination(v, t)
}

// awaitReply receives the reply correlated with id on a session of its own
// and hands it to the engine. A timeout is counted and logged, not returned.
func (t *Transport) awaitReply(ctx context.Context, ms *MessageSender, dest core.Destination, id string, wait time.Duration, info *jms.OutTransportInfo) error {
	logger := t.logger.With("destination", dest.Name, "destination_type", dest.Type.String(), "correlation_id", id)
	sess, err := ms.Connection().Session(ctx, core.SessionOptions{AckMode: core.AckAuto})
	if err != nil {
		return fmt.Errorf("open reply session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("reply session cleanup failed", "error", &core.ResourceCleanupError{Resource: "session", Err: err})
		}
	}()
	consumer, err := sess.Consumer(ctx, dest, core.ConsumerOptions{Selector: core.CorrelationSelector(id)})
	if err != nil {
		return fmt.Errorf("open reply consumer: %w", err)
	}
	defer consumer.Close()

	key := dest.Key()
	reply, err := consumer.Receive(ctx, wait)
	if err != nil {
		t.opts.Metrics.IncFaultsReceiving(key)
		return fmt.Errorf("receive reply: %w", err)
	}
	if reply == nil {
		t.opts.Metrics.IncTimeoutsReceiving(key)
		logger.Warn("did not receive a reply within the wait time", "wait", wait)
		return nil
	}
	t.opts.Metrics.IncMessagesReceived(key)
	t.opts.Metrics.AddBytesReceived(key, reply.Size())
	return t.processReply(ctx, reply, dest, info, logger)
}

func (t *Transport) processReply(ctx context.Context, reply *core.Message, dest core.Destination, info *jms.OutTransportInfo, logger *slog.Logger) error {
	prop := info.ContentTypeProperty
	if prop == "" {
		prop = jms.DefaultContentTypeProperty
	}
	ct, ok := reply.StringProperty(prop)
	if !ok {
		switch reply.Kind {
		case core.BodyText:
			ct = "text/plain"
		case core.BodyMap:
			ct = codec.MapContentType
		default:
			ct = "application/octet-stream"
		}
	}
	t.opts.Tracer.Received(dest.Key(), reply, ct)
	if t.opts.Engine == nil {
		return nil
	}
	payload, err := t.opts.Codec.Decode(reply, ct)
	if err != nil {
		t.opts.Metrics.IncFaultsReceiving(dest.Key())
		return &core.PoisonMessageError{Service: dest.Key(), MessageID: reply.MessageID, Err: err}
	}
	headers := jms.TransportHeaders(reply)
	action, _ := reply.StringProperty(jms.SOAPAction)
	req := &core.RequestContext{
		Message:             reply,
		Payload:             payload,
		ContentType:         ct,
		ContentTypeProperty: prop,
		Headers:             headers,
	}
	if _, err := t.opts.Engine.HandleIncomingMessage(ctx, req, headers, action, ct); err != nil {
		t.opts.Metrics.IncFaultsReceiving(dest.Key())
		logger.Error("engine failed to process reply", "message_id", reply.MessageID, "error", err)
		return err
	}
	return nil
}

// Reply sends an engine result to the request's reply destination through
// the factory the request arrived on.
func (t *Transport) Reply(ctx context.Context, req *core.RequestContext, reply *core.Payload, contentType string) error {
	if req.ReplyTo == nil {
		return fmt.Errorf("reply for %s: no reply destination: %w", req.Service, core.ErrUnsupported)
	}
	if t.opts.Factories == nil {
		return fmt.Errorf("reply for %s: %w", req.Service, core.ErrFactoryNotFound)
	}
	f, ok := t.opts.Factories.Lookup(req.ConnectionFactory)
	if !ok {
		return fmt.Errorf("reply for %s via %q: %w", req.Service, req.ConnectionFactory, core.ErrFactoryNotFound)
	}
	ms, err := NewMessageSender(ctx, f, *req.ReplyTo, Options{
		BindingRepair: bindingRepair(f.Config().Properties),
		Metrics:       t.opts.Metrics,
		Tracer:        t.opts.Tracer,
		Logger:        t.logger.With("service", req.Service),
	})
	if err != nil {
		return err
	}
	defer ms.Close()

	kind := core.BodyBytes
	if reply != nil {
		kind = reply.Kind
	}
	if req.Message != nil && req.Message.Kind == core.BodyText && kind == core.BodyBytes {
		kind = core.BodyText
	}
	msg, err := t.opts.Codec.Encode(reply, kind)
	if errors.Is(err, core.ErrPayloadConversion) && kind == core.BodyText {
		msg, err = t.opts.Codec.Encode(reply, core.BodyBytes)
	}
	if err != nil {
		return &core.SendError{Destination: *req.ReplyTo, Err: err}
	}
	msg.CorrelationID = req.CorrelationID()
	prop := req.ContentTypeProperty
	if prop == "" {
		prop = jms.DefaultContentTypeProperty
	}
	if contentType != "" {
		msg.SetProperty(prop, contentType)
	}
	return ms.Send(ctx, msg, nil)
}
