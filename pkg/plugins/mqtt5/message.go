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

package mqtt5

import (
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

func toPublish(msg *core.Message, topic string, qos byte) (*paho.Publish, error) {
	body, err := base.EncodeBody(msg)
	if err != nil {
		return nil, err
	}
	props := &paho.PublishProperties{}
	if msg.CorrelationID != "" {
		props.CorrelationData = []byte(msg.CorrelationID)
	}
	if msg.ReplyTo != nil {
		props.ResponseTopic = msg.ReplyTo.Name
	}
	if msg.Kind == core.BodyText {
		props.ContentType = "text/plain"
	}
	if !msg.Expiration.IsZero() {
		secs := uint32(time.Until(msg.Expiration).Round(time.Second) / time.Second)
		if secs == 0 {
			secs = 1
		}
		props.MessageExpiry = &secs
	}
	for k, v := range base.HeaderProperties(msg) {
		props.User.Add(k, v)
	}
	return &paho.Publish{
		Topic:      topic,
		QoS:        qos,
		Payload:    body,
		Properties: props,
	}, nil
}

func fromPublish(pub *paho.Publish, dest core.Destination) (*core.Message, error) {
	props := map[string]string{}
	var correlation, responseTopic string
	if pp := pub.Properties; pp != nil {
		for _, u := range pp.User {
			props[u.Key] = u.Value
		}
		correlation = string(pp.CorrelationData)
		responseTopic = pp.ResponseTopic
	}
	msg, err := base.DecodeBody(base.BodyKind(props), pub.Payload)
	if err != nil {
		return nil, err
	}
	msg.Priority = core.DefaultPriority
	msg.DeliveryMode = core.NonPersistent
	if pub.QoS > 0 {
		msg.DeliveryMode = core.Persistent
	}
	msg.CorrelationID = correlation
	if responseTopic != "" {
		msg.ReplyTo = &core.Destination{Name: responseTopic, Type: core.DestinationQueue}
	}
	base.ApplyHeaderProperties(msg, props)
	d := dest
	d.Name = pub.Topic
	msg.Destination = &d
	return msg, nil
}
