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

// Package engine is the processing engine the server binary hands received
// messages to. Each service's route picks what happens to its messages.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/sender"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const (
	ActionEcho    = "echo"
	ActionForward = "forward"
	ActionLog     = "log"
)

// Forwarder sends to a jms:/ address. *sender.Transport implements it.
type Forwarder interface {
	Send(ctx context.Context, target string, out *sender.Outbound) error
}

type Engine struct {
	routes    *routing.Table
	forwarder Forwarder
	logger    *slog.Logger
}

func New(routes *routing.Table, forwarder Forwarder, logger *slog.Logger) *Engine {
	return &Engine{
		routes:    routes,
		forwarder: forwarder,
		logger:    logger.With("component", "engine"),
	}
}

// SetForwarder exists because the transport that forwards also needs the
// engine for synchronous replies.
func (e *Engine) SetForwarder(f Forwarder) {
	e.forwarder = f
}

func ValidAction(action string) bool {
	switch strings.ToLower(action) {
	case "", ActionEcho, ActionForward, ActionLog:
		return true
	}
	return false
}

func (e *Engine) HandleIncomingMessage(ctx context.Context, req *core.RequestContext, headers map[string]any, action string, contentType string) (*core.EngineResult, error) {
	service := req.Service
	if service == "" {
		service, _ = core.ServiceFrom(ctx)
	}
	if service == "" {
		// Synchronous replies to engine-initiated sends carry no service.
		e.logger.InfoContext(ctx, "reply received",
			"correlation_id", req.CorrelationID(),
			"content_type", contentType,
		)
		return &core.EngineResult{}, nil
	}
	b, ok := e.routes.Lookup(service)
	if !ok {
		return nil, fmt.Errorf("route for %q: %w", service, core.ErrServiceNotFound)
	}

	switch strings.ToLower(b.Route.Action) {
	case "", ActionEcho:
		return &core.EngineResult{Reply: req.Payload, ReplyContentType: contentType}, nil
	case ActionLog:
		e.logger.InfoContext(ctx, "message received",
			"service", service,
			"message_id", messageID(req),
			"content_type", contentType,
			"action", action,
			"headers", len(headers),
		)
		return &core.EngineResult{}, nil
	case ActionForward:
		if e.forwarder == nil || b.Route.Target == "" {
			return nil, &core.ConfigError{Scope: service, Param: "engine.target", Err: core.ErrUnsupported}
		}
		out := &sender.Outbound{
			Payload:             req.Payload,
			ContentType:         contentType,
			Headers:             forwardHeaders(req),
			Action:              action,
			CorrelationID:       req.CorrelationID(),
			ContentTypeProperty: req.ContentTypeProperty,
		}
		if err := e.forwarder.Send(ctx, b.Route.Target, out); err != nil {
			return nil, fmt.Errorf("forward %s to %s: %w", service, b.Route.Target, err)
		}
		return &core.EngineResult{}, nil
	default:
		return nil, &core.ConfigError{Scope: service, Param: "engine.action", Err: fmt.Errorf("unknown action %q", b.Route.Action)}
	}
}

// forwardHeaders carries the request's properties and the headers a sender
// may set, leaving broker-assigned ones behind.
func forwardHeaders(req *core.RequestContext) map[string]any {
	if req.Message == nil {
		return nil
	}
	h := make(map[string]any, len(req.Message.Properties)+2)
	for k, v := range req.Message.Properties {
		if k == req.ContentTypeProperty {
			continue
		}
		h[k] = v
	}
	if req.Message.Type != "" {
		h[jms.HeaderType] = req.Message.Type
	}
	if req.Message.Priority > 0 {
		h[jms.HeaderPriority] = req.Message.Priority
	}
	return h
}

func messageID(req *core.RequestContext) string {
	if req.Message == nil {
		return ""
	}
	return req.Message.MessageID
}

// HandleFault logs a message the listener could not hand over.
func (e *Engine) HandleFault(ctx context.Context, req *core.RequestContext, err error) {
	e.logger.WarnContext(ctx, "poison message",
		"service", req.Service,
		"message_id", messageID(req),
		"error", err,
	)
}
