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
	"fmt"
	"time"

	"github.com/Azure/go-amqp"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

func (p *Provider) toAMQP(msg *core.Message) (*amqp.Message, error) {
	am := &amqp.Message{
		Header: &amqp.MessageHeader{
			Durable:  msg.DeliveryMode == core.Persistent,
			Priority: uint8(msg.Priority),
		},
		Properties: &amqp.MessageProperties{
			MessageID: msg.MessageID,
		},
		ApplicationProperties: make(map[string]any, len(msg.Properties)+1),
	}
	if !msg.Timestamp.IsZero() {
		ts := msg.Timestamp
		am.Properties.CreationTime = &ts
	}
	if !msg.Expiration.IsZero() {
		exp := msg.Expiration
		am.Properties.AbsoluteExpiryTime = &exp
		am.Header.TTL = time.Until(exp)
	}
	if msg.CorrelationID != "" {
		am.Properties.CorrelationID = msg.CorrelationID
	}
	if msg.ReplyTo != nil {
		addr := p.address(*msg.ReplyTo)
		am.Properties.ReplyTo = &addr
	}
	if msg.Type != "" {
		subject := msg.Type
		am.Properties.Subject = &subject
	}
	for k, v := range msg.Properties {
		if n, ok := v.(int); ok {
			v = int64(n)
		}
		am.ApplicationProperties[k] = v
	}
	am.ApplicationProperties[base.PropBodyKind] = msg.Kind.String()

	if msg.Kind == core.BodyText {
		am.Value = msg.Text
		return am, nil
	}
	data, err := base.EncodeBody(msg)
	if err != nil {
		return nil, err
	}
	am.Data = [][]byte{data}
	return am, nil
}

func (p *Provider) fromAMQP(am *amqp.Message, dest core.Destination) (*core.Message, error) {
	kind := core.BodyBytes
	if k, ok := am.ApplicationProperties[base.PropBodyKind].(string); ok {
		kind = base.BodyKind(map[string]string{base.PropBodyKind: k})
	}
	var msg *core.Message
	if s, ok := am.Value.(string); ok {
		msg = core.NewTextMessage(s)
	} else {
		var err error
		if msg, err = base.DecodeBody(kind, am.GetData()); err != nil {
			return nil, err
		}
	}
	d := dest
	msg.Destination = &d
	msg.DeliveryMode = core.NonPersistent
	msg.Priority = core.DefaultPriority
	if h := am.Header; h != nil {
		if h.Durable {
			msg.DeliveryMode = core.Persistent
		}
		msg.Priority = int(h.Priority)
		msg.Redelivered = h.DeliveryCount > 0
	}
	if pr := am.Properties; pr != nil {
		msg.MessageID = idString(pr.MessageID)
		msg.CorrelationID = idString(pr.CorrelationID)
		if pr.ReplyTo != nil && *pr.ReplyTo != "" {
			rt := p.destination(*pr.ReplyTo)
			msg.ReplyTo = &rt
		}
		if pr.Subject != nil {
			msg.Type = *pr.Subject
		}
		if pr.CreationTime != nil {
			msg.Timestamp = *pr.CreationTime
		}
		if pr.AbsoluteExpiryTime != nil {
			msg.Expiration = *pr.AbsoluteExpiryTime
		}
	}
	for k, v := range am.ApplicationProperties {
		if k == base.PropBodyKind {
			continue
		}
		msg.SetProperty(k, v)
	}
	return msg, nil
}

func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
