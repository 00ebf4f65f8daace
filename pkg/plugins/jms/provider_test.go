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
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/base"
)

func testProvider(t *testing.T, env map[string]string) *Provider {
	t.Helper()
	p, err := New("amqp://localhost:5672", env, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p.(*Provider)
}

func TestAddressPrefixes(t *testing.T) {
	p := testProvider(t, map[string]string{EnvQueuePrefix: "queue://"})

	assert.Equal(t, "queue://Orders", p.address(core.Destination{Name: "Orders", Type: core.DestinationQueue}))
	assert.Equal(t, "topic://Prices", p.address(core.Destination{Name: "Prices", Type: core.DestinationTopic}))
	assert.Equal(t, "tmp-1", p.address(core.Destination{Name: "tmp-1", Temporary: true}))

	assert.Equal(t, core.Destination{Name: "Prices", Type: core.DestinationTopic}, p.destination("topic://Prices"))
	assert.Equal(t, core.Destination{Name: "Orders", Type: core.DestinationQueue}, p.destination("queue://Orders"))
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New("", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestTextMessageMapping(t *testing.T) {
	p := testProvider(t, nil)
	dest := core.Destination{Name: "Orders", Type: core.DestinationQueue}
	msg := core.NewTextMessage("hello")
	msg.CorrelationID = "corr-1"
	msg.ReplyTo = &core.Destination{Name: "Replies", Type: core.DestinationQueue}
	msg.Type = "order"
	msg.SetProperty("count", 3)
	core.PrepareForSend(msg, dest, core.SendOptions{DeliveryMode: core.Persistent, Priority: 6, TimeToLive: time.Minute}, time.Now())

	am, err := p.toAMQP(msg)
	require.NoError(t, err)
	assert.Equal(t, "hello", am.Value)
	assert.True(t, am.Header.Durable)
	assert.Equal(t, uint8(6), am.Header.Priority)
	assert.Equal(t, int64(3), am.ApplicationProperties["count"])
	assert.Equal(t, "Replies", *am.Properties.ReplyTo)

	got, err := p.fromAMQP(am, dest)
	require.NoError(t, err)
	assert.Equal(t, core.BodyText, got.Kind)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, msg.MessageID, got.MessageID)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, "order", got.Type)
	assert.Equal(t, 6, got.Priority)
	assert.Equal(t, core.Persistent, got.DeliveryMode)
	assert.Equal(t, "queue://Replies", got.ReplyTo.Key())
	assert.NotContains(t, got.Properties, base.PropBodyKind)
}

func TestMapBodyTravelsAsData(t *testing.T) {
	p := testProvider(t, nil)
	dest := core.Destination{Name: "Orders", Type: core.DestinationQueue}

	am, err := p.toAMQP(core.NewMapMessage(map[string]any{"sku": "A1"}))
	require.NoError(t, err)
	require.Len(t, am.Data, 1)
	assert.Nil(t, am.Value)

	got, err := p.fromAMQP(am, dest)
	require.NoError(t, err)
	assert.Equal(t, core.BodyMap, got.Kind)
	assert.Equal(t, "A1", got.Map["sku"])
}

func TestForeignMessageDefaults(t *testing.T) {
	p := testProvider(t, nil)
	am := &amqp.Message{Data: [][]byte{[]byte("raw")}, Properties: &amqp.MessageProperties{MessageID: uint64(42)}}

	got, err := p.fromAMQP(am, core.Destination{Name: "In"})
	require.NoError(t, err)
	assert.Equal(t, core.BodyBytes, got.Kind)
	assert.Equal(t, []byte("raw"), got.Bytes)
	assert.Equal(t, "42", got.MessageID)
	assert.Equal(t, core.DefaultPriority, got.Priority)
	assert.Equal(t, core.NonPersistent, got.DeliveryMode)
}
