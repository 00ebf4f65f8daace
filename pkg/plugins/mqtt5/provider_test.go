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
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewParsesOptions(t *testing.T) {
	p, err := New("mqtt://localhost:1883", map[string]string{EnvQoS: "2", EnvShareGroup: "bridge"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, byte(2), p.(*Provider).qos)
	assert.Equal(t, "bridge", p.(*Provider).group)

	_, err = New("mqtt://localhost:1883", map[string]string{EnvQoS: "3"}, testLogger())
	assert.True(t, core.IsConfig(err))

	_, err = New("not a url", nil, testLogger())
	assert.Error(t, err)
}

func TestSubscriptionFilters(t *testing.T) {
	p := &Provider{group: "jms"}

	sub, shared := p.subscription(core.Destination{Name: "orders", Type: core.DestinationQueue})
	assert.Equal(t, "$share/jms/orders", sub)
	assert.True(t, shared)

	sub, shared = p.subscription(core.Destination{Name: "prices/+", Type: core.DestinationTopic})
	assert.Equal(t, "prices/+", sub)
	assert.False(t, shared)

	sub, shared = p.subscription(core.Destination{Name: temporaryPrefix + "x", Type: core.DestinationQueue, Temporary: true})
	assert.Equal(t, temporaryPrefix+"x", sub)
	assert.False(t, shared)
}

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b", "a/b", true},
		{"a/+", "a/b", true},
		{"a/+", "a/b/c", false},
		{"a/#", "a/b/c", true},
		{"#", "a", true},
		{"a/b", "a", false},
		{"a", "a/b", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TopicMatches(tc.filter, tc.topic), "%s vs %s", tc.filter, tc.topic)
	}
}

func TestDispatchPicksOneQueueConsumer(t *testing.T) {
	c := &connection{}
	mk := func(filter string, shared bool) *consumer {
		k := &consumer{filter: filter, shared: shared, inbound: make(chan *paho.Publish, 4), closed: make(chan struct{})}
		c.add(k)
		return k
	}
	q1, q2 := mk("orders", true), mk("orders", true)
	audit := mk("#", false)

	for i := 0; i < 4; i++ {
		assert.True(t, c.dispatch(&paho.Publish{Topic: "orders"}))
	}
	assert.Len(t, q1.inbound, 2)
	assert.Len(t, q2.inbound, 2)
	assert.Len(t, audit.inbound, 4)

	c.remove(audit)
	assert.False(t, c.dispatch(&paho.Publish{Topic: "other"}))
}

func TestPublishRoundTrip(t *testing.T) {
	dest := core.Destination{Name: "orders", Type: core.DestinationQueue}
	msg := core.NewTextMessage("hello")
	msg.CorrelationID = "corr"
	msg.ReplyTo = &core.Destination{Name: "replies", Type: core.DestinationQueue}
	msg.SetProperty("region", "eu")
	core.PrepareForSend(msg, dest, core.SendOptions{Priority: 3, TimeToLive: time.Minute}, time.Now())

	pub, err := toPublish(msg, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("corr"), pub.Properties.CorrelationData)
	assert.Equal(t, "replies", pub.Properties.ResponseTopic)
	require.NotNil(t, pub.Properties.MessageExpiry)
	assert.Equal(t, "eu", pub.Properties.User.Get("region"))

	got, err := fromPublish(pub, dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, msg.MessageID, got.MessageID)
	assert.Equal(t, "corr", got.CorrelationID)
	assert.Equal(t, 3, got.Priority)
	assert.Equal(t, "queue://replies", got.ReplyTo.Key())
	assert.Equal(t, "eu", got.Properties["region"])
}

func TestForeignPublishDefaults(t *testing.T) {
	got, err := fromPublish(&paho.Publish{Topic: "sensors/1", Payload: []byte("21.5")}, core.Destination{Name: "sensors/+", Type: core.DestinationTopic})
	require.NoError(t, err)
	assert.Equal(t, core.BodyBytes, got.Kind)
	assert.Equal(t, "sensors/1", got.Destination.Name)
	assert.Equal(t, core.NonPersistent, got.DeliveryMode)
	assert.Equal(t, core.DefaultPriority, got.Priority)
}
