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

package jms

import (
	"strconv"
	"strings"
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// TransportHeaders exposes the JMS headers and properties of msg to the engine.
func TransportHeaders(msg *core.Message) map[string]any {
	h := make(map[string]any, len(msg.Properties)+10)
	if msg.CorrelationID != "" {
		h[HeaderCorrelationID] = msg.CorrelationID
	}
	if msg.DeliveryMode != 0 {
		h[HeaderDeliveryMode] = int(msg.DeliveryMode)
	}
	if msg.Destination != nil {
		h[HeaderDestination] = msg.Destination.String()
	}
	if !msg.Expiration.IsZero() {
		h[HeaderExpiration] = msg.Expiration.UnixMilli()
	}
	if msg.MessageID != "" {
		h[HeaderMessageID] = msg.MessageID
	}
	h[HeaderPriority] = msg.Priority
	h[HeaderRedelivered] = msg.Redelivered
	if msg.ReplyTo != nil {
		h[HeaderReplyTo] = msg.ReplyTo.String()
	}
	if !msg.Timestamp.IsZero() {
		h[HeaderTimestamp] = msg.Timestamp.UnixMilli()
	}
	if msg.Type != "" {
		h[HeaderType] = msg.Type
	}
	for k, v := range msg.Properties {
		h[k] = v
	}
	return h
}

// ApplyTransportHeaders copies engine headers onto an outbound message.
// JMSX properties other than the group id and sequence are skipped, as are
// headers only the broker may assign. It returns the names of headers that
// could not be applied.
func ApplyTransportHeaders(msg *core.Message, headers map[string]any) []string {
	var ignored []string
	for name, value := range headers {
		if strings.HasPrefix(name, JMSXPrefix) && name != JMSXGroupID && name != JMSXGroupSeq {
			continue
		}
		switch name {
		case HeaderCorrelationID:
			msg.CorrelationID = core.FormatValue(value)
		case HeaderDeliveryMode:
			n, ok := intValue(value)
			if !ok || (n != int64(core.NonPersistent) && n != int64(core.Persistent)) {
				ignored = append(ignored, name)
				continue
			}
			msg.DeliveryMode = core.DeliveryMode(n)
		case HeaderExpiration:
			n, ok := intValue(value)
			if !ok {
				ignored = append(ignored, name)
				continue
			}
			if n > 0 {
				msg.Expiration = time.UnixMilli(n)
			}
		case HeaderMessageID:
			msg.MessageID = core.FormatValue(value)
		case HeaderPriority:
			n, ok := intValue(value)
			if !ok {
				ignored = append(ignored, name)
				continue
			}
			msg.Priority = int(n)
		case HeaderTimestamp:
			n, ok := intValue(value)
			if !ok {
				ignored = append(ignored, name)
				continue
			}
			msg.Timestamp = time.UnixMilli(n)
		case HeaderType:
			msg.Type = core.FormatValue(value)
		case HeaderDestination, HeaderReplyTo, HeaderRedelivered, HeaderMessageType:
		default:
			switch value.(type) {
			case string, bool, int, int32, int64, float32, float64:
				msg.SetProperty(name, value)
			default:
				ignored = append(ignored, name)
			}
		}
	}
	return ignored
}

func intValue(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
