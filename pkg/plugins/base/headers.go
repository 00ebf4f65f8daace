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

package base

import (
	"strconv"
	"strings"
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// Property names under which providers without native JMS headers carry
// them as user properties.
const (
	PropMessageID     = "JMSMessageID"
	PropCorrelationID = "JMSCorrelationID"
	PropReplyTo       = "JMSReplyTo"
	PropType          = "JMSType"
	PropDeliveryMode  = "JMSDeliveryMode"
	PropPriority      = "JMSPriority"
	PropTimestamp     = "JMSTimestamp"
	PropExpiration    = "JMSExpiration"
	PropBodyKind      = "JMSBodyKind"
)

// HeaderProperties renders msg's headers and properties as strings.
func HeaderProperties(msg *core.Message) map[string]string {
	out := make(map[string]string, len(msg.Properties)+8)
	for k, v := range msg.Properties {
		out[k] = core.FormatValue(v)
	}
	if msg.MessageID != "" {
		out[PropMessageID] = msg.MessageID
	}
	if msg.CorrelationID != "" {
		out[PropCorrelationID] = msg.CorrelationID
	}
	if msg.ReplyTo != nil {
		out[PropReplyTo] = msg.ReplyTo.Key()
	}
	if msg.Type != "" {
		out[PropType] = msg.Type
	}
	if msg.DeliveryMode != 0 {
		out[PropDeliveryMode] = strconv.Itoa(int(msg.DeliveryMode))
	}
	out[PropPriority] = strconv.Itoa(msg.Priority)
	if !msg.Timestamp.IsZero() {
		out[PropTimestamp] = strconv.FormatInt(msg.Timestamp.UnixMilli(), 10)
	}
	if !msg.Expiration.IsZero() {
		out[PropExpiration] = strconv.FormatInt(msg.Expiration.UnixMilli(), 10)
	}
	out[PropBodyKind] = msg.Kind.String()
	return out
}

// ApplyHeaderProperties is the inverse of HeaderProperties. Entries that are
// not JMS headers become string properties.
func ApplyHeaderProperties(msg *core.Message, props map[string]string) {
	for k, v := range props {
		switch k {
		case PropMessageID:
			msg.MessageID = v
		case PropCorrelationID:
			msg.CorrelationID = v
		case PropReplyTo:
			if d, ok := ParseDestinationKey(v); ok {
				msg.ReplyTo = &d
			}
		case PropType:
			msg.Type = v
		case PropDeliveryMode:
			if n, err := strconv.Atoi(v); err == nil {
				msg.DeliveryMode = core.DeliveryMode(n)
			}
		case PropPriority:
			if n, err := strconv.Atoi(v); err == nil {
				msg.Priority = n
			}
		case PropTimestamp:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				msg.Timestamp = time.UnixMilli(n)
			}
		case PropExpiration:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				msg.Expiration = time.UnixMilli(n)
			}
		case PropBodyKind:
		default:
			msg.SetProperty(k, v)
		}
	}
}

// BodyKind reads the kind HeaderProperties recorded, defaulting to bytes.
func BodyKind(props map[string]string) core.BodyKind {
	switch props[PropBodyKind] {
	case "text":
		return core.BodyText
	case "map":
		return core.BodyMap
	default:
		return core.BodyBytes
	}
}

// ParseDestinationKey parses the queue://name and topic://name form of
// core.Destination.Key.
func ParseDestinationKey(s string) (core.Destination, bool) {
	kind, name, ok := strings.Cut(s, "://")
	if !ok || name == "" {
		return core.Destination{}, false
	}
	t, err := core.ParseDestinationType(kind, core.DestinationQueue)
	if err != nil {
		return core.Destination{}, false
	}
	return core.Destination{Name: name, Type: t}, true
}
