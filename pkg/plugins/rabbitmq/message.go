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

package rabbitmq

import (
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

func toPublishing(msg *core.Message) (amqp.Publishing, error) {
	body, err := base.EncodeBody(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}
	headers := amqp.Table{base.PropBodyKind: msg.Kind.String()}
	for k, v := range msg.Properties {
		switch x := v.(type) {
		case int:
			headers[k] = int64(x)
		case bool, int8, int16, int32, int64, float32, float64, string, []byte:
			headers[k] = x
		default:
			headers[k] = core.FormatValue(x)
		}
	}
	pub := amqp.Publishing{
		Headers:       headers,
		DeliveryMode:  amqp.Transient,
		Priority:      uint8(msg.Priority),
		CorrelationId: msg.CorrelationID,
		MessageId:     msg.MessageID,
		Timestamp:     msg.Timestamp,
		Type:          msg.Type,
		Body:          body,
	}
	if msg.DeliveryMode == core.Persistent {
		pub.DeliveryMode = amqp.Persistent
	}
	if msg.ReplyTo != nil {
		pub.ReplyTo = replyAddress(*msg.ReplyTo)
	}
	if !msg.Expiration.IsZero() {
		ttl := time.Until(msg.Expiration).Milliseconds()
		if ttl < 1 {
			ttl = 1
		}
		pub.Expiration = strconv.FormatInt(ttl, 10)
	}
	return pub, nil
}

// replyAddress keeps plain queue names plain so non-JMS responders can
// publish straight to them.
func replyAddress(d core.Destination) string {
	if d.Type == core.DestinationTopic && !d.Temporary {
		return d.Key()
	}
	return d.Name
}

func fromDelivery(d amqp.Delivery, dest core.Destination) (*core.Message, error) {
	kind := core.BodyBytes
	if k, ok := d.Headers[base.PropBodyKind].(string); ok {
		kind = base.BodyKind(map[string]string{base.PropBodyKind: k})
	}
	msg, err := base.DecodeBody(kind, d.Body)
	if err != nil {
		return nil, err
	}
	dst := dest
	msg.Destination = &dst
	msg.MessageID = d.MessageId
	msg.CorrelationID = d.CorrelationId
	msg.Type = d.Type
	msg.Timestamp = d.Timestamp
	msg.Priority = int(d.Priority)
	msg.Redelivered = d.Redelivered
	msg.DeliveryMode = core.NonPersistent
	if d.DeliveryMode == amqp.Persistent {
		msg.DeliveryMode = core.Persistent
	}
	if d.ReplyTo != "" {
		rt, ok := base.ParseDestinationKey(d.ReplyTo)
		if !ok {
			rt = core.Destination{Name: d.ReplyTo, Type: core.DestinationQueue}
		}
		msg.ReplyTo = &rt
	}
	for k, v := range d.Headers {
		if k == base.PropBodyKind {
			continue
		}
		msg.SetProperty(k, v)
	}
	return msg, nil
}
