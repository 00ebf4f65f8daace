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

package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/contenttype"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

func TestNewBindingDefaults(t *testing.T) {
	b, err := NewBinding("echo", map[string]string{jms.ParamDestination: "EchoQueue"}, contenttype.Config{}, Route{Action: "echo"})
	require.NoError(t, err)

	assert.Equal(t, jms.DefaultFactoryName, b.Factory)
	assert.Equal(t, core.Destination{Name: "EchoQueue", Type: core.DestinationQueue}, b.Destination)
	assert.Nil(t, b.ReplyDestination)
	assert.Equal(t, 1, b.Concurrency)
	assert.Equal(t, time.Second, b.ReceiveTimeout)
	assert.Equal(t, "Content-Type", b.ContentTypeProperty)
	assert.Equal(t, TxNone, b.Transactionality)
	assert.Equal(t, core.AckAuto, b.AckMode)
}

func TestNewBindingFull(t *testing.T) {
	b, err := NewBinding("prices", map[string]string{
		jms.ParamConnectionFactory:   "eu",
		jms.ParamDestination:         "Prices",
		jms.ParamDestinationType:     "topic",
		jms.ParamReplyDestination:    "PriceReplies",
		jms.ParamContentTypeProperty: "ct",
		jms.ParamConcurrentConsumers: "4",
		jms.ParamReceiveTimeout:      "250",
		jms.ParamSubscriptionDurable: "true",
		jms.ParamDurableClientID:     "bridge-1",
		jms.ParamTransactionality:    "local",
		jms.ParamMaxMessageSize:      "1024",
		jms.ParamMessageSelector:     "region = 'eu'",
	}, contenttype.Config{}, Route{})
	require.NoError(t, err)

	assert.Equal(t, "eu", b.Factory)
	assert.Equal(t, core.DestinationTopic, b.Destination.Type)
	require.NotNil(t, b.ReplyDestination)
	assert.Equal(t, core.Destination{Name: "PriceReplies", Type: core.DestinationQueue}, *b.ReplyDestination)
	assert.Equal(t, "ct", b.ContentTypes.Property())
	assert.Equal(t, 1, b.Concurrency)
	require.Len(t, b.Warnings, 1)
	assert.Contains(t, b.Warnings[0], jms.ParamConcurrentConsumers)
	assert.Equal(t, 250*time.Millisecond, b.ReceiveTimeout)
	assert.True(t, b.Durable)
	assert.Equal(t, "prices", b.SubscriptionName)
	assert.Equal(t, "bridge-1", b.ClientID)
	assert.True(t, b.SessionTransacted)
	assert.Equal(t, int64(1024), b.MaxMessageSize)
	assert.Equal(t, "region = 'eu'", b.ConsumerOptions().Selector)
}

func TestNewBindingKeepsQueueConcurrency(t *testing.T) {
	b, err := NewBinding("orders", map[string]string{jms.ParamConcurrentConsumers: "4"}, contenttype.Config{}, Route{})
	require.NoError(t, err)
	assert.Equal(t, 4, b.Concurrency)
	assert.Empty(t, b.Warnings)

	b, err = NewBinding("ticks", map[string]string{
		jms.ParamDestinationType:     "topic",
		jms.ParamConcurrentConsumers: "3",
	}, contenttype.Config{}, Route{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Concurrency)
	assert.Len(t, b.Warnings, 1)
}

func TestNewBindingRejectsBadParameters(t *testing.T) {
	cases := map[string]map[string]string{
		"destination type": {jms.ParamDestinationType: "mailbox"},
		"concurrency":      {jms.ParamConcurrentConsumers: "0"},
		"receive timeout":  {jms.ParamReceiveTimeout: "soon"},
		"durable on queue": {jms.ParamSubscriptionDurable: "true"},
		"transactionality": {jms.ParamTransactionality: "xa"},
		"max message size": {jms.ParamMaxMessageSize: "-1"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewBinding("svc", params, contenttype.Config{}, Route{})
			assert.True(t, core.IsConfig(err), "got %v", err)
		})
	}
}

func TestBindingEqual(t *testing.T) {
	params := map[string]string{jms.ParamDestination: "Q"}
	a, err := NewBinding("svc", params, contenttype.Config{}, Route{Action: "log"})
	require.NoError(t, err)
	b, err := NewBinding("svc", params, contenttype.Config{}, Route{Action: "log"})
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	c, err := NewBinding("svc", params, contenttype.Config{}, Route{Action: "echo"})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}
