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

package logging

import (
	"log/slog"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// Tracer logs one debug line per message crossing the bridge.
type Tracer struct {
	logger *slog.Logger
}

func NewTracer(logger *slog.Logger) *Tracer {
	return &Tracer{logger: logger}
}

// Received traces an inbound message for service.
func (t *Tracer) Received(service string, msg *core.Message, contentType string) {
	t.trace("received", msg,
		"service", service,
		"content_type", contentType,
	)
}

// Sent traces an outbound message.
func (t *Tracer) Sent(dest core.Destination, msg *core.Message) {
	t.trace("sent", msg,
		"destination", dest.Name,
		"destination_type", dest.Type.String(),
	)
}

func (t *Tracer) trace(direction string, msg *core.Message, attrs ...any) {
	if t == nil || t.logger == nil {
		return
	}
	attrs = append(attrs,
		"direction", direction,
		"message_id", msg.MessageID,
		"correlation_id", msg.CorrelationID,
		"body_kind", msg.Kind.String(),
		"payload_size", msg.Size(),
		"redelivered", msg.Redelivered,
	)
	if msg.ReplyTo != nil {
		attrs = append(attrs, "reply_to", msg.ReplyTo.String())
	}
	t.logger.Debug("message", attrs...)
}
