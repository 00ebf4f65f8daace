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
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, parseBrokers("kafka://a:9092, b:9092"))
	assert.Equal(t, []string{"localhost:9092"}, parseBrokers("localhost:9092"))
	assert.Empty(t, parseBrokers("kafka://"))

	_, err := New("", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, core.ErrNameNotFound)
}

func TestConsumerGroups(t *testing.T) {
	c := &connection{provider: &Provider{groupPrefix: "bridge"}, clientID: "node1"}
	queue := core.Destination{Name: "Orders", Type: core.DestinationQueue}
	prices := core.Destination{Name: "Prices", Type: core.DestinationTopic}

	assert.Equal(t, "bridge.Orders", c.group(queue, core.ConsumerOptions{}))
	assert.Equal(t, "bridge.node1.audit", c.group(prices, core.ConsumerOptions{Durable: true, SubscriptionName: "audit"}))

	a := c.group(prices, core.ConsumerOptions{})
	b := c.group(prices, core.ConsumerOptions{})
	assert.NotEqual(t, a, b)
}

func TestTemporaryQueueNames(t *testing.T) {
	s := &session{}
	d, err := s.TemporaryQueue(t.Context())
	require.NoError(t, err)
	assert.True(t, d.Temporary)
	assert.True(t, strings.HasPrefix(d.Name, temporaryPrefix))
}

func TestRecordRoundTrip(t *testing.T) {
	dest := core.Destination{Name: "Orders", Type: core.DestinationQueue}
	msg := core.NewTextMessage("hello")
	msg.CorrelationID = "corr"
	msg.SetProperty(groupProperty, "cust-7")
	core.PrepareForSend(msg, dest, core.SendOptions{DeliveryMode: core.NonPersistent, Priority: 2}, time.Now())

	km, err := toKafka(msg)
	require.NoError(t, err)
	assert.Equal(t, []byte("cust-7"), km.Key)
	assert.Contains(t, km.Headers, kafka.Header{Key: base.PropBodyKind, Value: []byte("text")})

	got, err := fromKafka(km, dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, msg.MessageID, got.MessageID)
	assert.Equal(t, "corr", got.CorrelationID)
	assert.Equal(t, 2, got.Priority)
	assert.Equal(t, core.NonPersistent, got.DeliveryMode)
	assert.Equal(t, "cust-7", got.Properties[groupProperty])
}

func TestForeignRecordDefaults(t *testing.T) {
	got, err := fromKafka(kafka.Message{Value: []byte{1, 2}}, core.Destination{Name: "raw"})
	require.NoError(t, err)
	assert.Equal(t, core.BodyBytes, got.Kind)
	assert.Equal(t, core.DefaultPriority, got.Priority)
	assert.Equal(t, core.Persistent, got.DeliveryMode)
}
