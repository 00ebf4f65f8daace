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

package kafka

import (
	"github.com/segmentio/kafka-go"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

// groupProperty keys records so one message group stays on one partition.
const groupProperty = "JMSXGroupID"

func toKafka(msg *core.Message) (kafka.Message, error) {
	body, err := base.EncodeBody(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	props := base.HeaderProperties(msg)
	km := kafka.Message{
		Value:   body,
		Time:    msg.Timestamp,
		Headers: make([]kafka.Header, 0, len(props)),
	}
	if g, ok := msg.StringProperty(groupProperty); ok {
		km.Key = []byte(g)
	}
	for k, v := range props {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km, nil
}

func fromKafka(km kafka.Message, dest core.Destination) (*core.Message, error) {
	props := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		props[h.Key] = string(h.Value)
	}
	msg, err := base.DecodeBody(base.BodyKind(props), km.Value)
	if err != nil {
		return nil, err
	}
	msg.Priority = core.DefaultPriority
	msg.DeliveryMode = core.Persistent
	msg.Timestamp = km.Time
	base.ApplyHeaderProperties(msg, props)
	d := dest
	msg.Destination = &d
	return msg, nil
}
