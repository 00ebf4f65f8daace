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

package solace

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

func TestNewDefaultsVPN(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := New("tcp://localhost:55555", nil, logger)
	require.NoError(t, err)
	assert.Equal(t, defaultVPN, p.(*Provider).vpn)

	p, err = New("tcp://localhost:55555", map[string]string{EnvVPN: "trading"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "trading", p.(*Provider).vpn)

	_, err = New("", nil, logger)
	assert.ErrorIs(t, err, core.ErrNameNotFound)
}

func TestQueueEndpoints(t *testing.T) {
	q := queueFor(core.Destination{Name: "Orders", Type: core.DestinationQueue}, core.ConsumerOptions{}, "node1")
	assert.Equal(t, "Orders", q.GetName())
	assert.False(t, q.IsExclusivelyAccessible())

	sub := queueFor(core.Destination{Name: "Prices", Type: core.DestinationTopic}, core.ConsumerOptions{Durable: true, SubscriptionName: "audit"}, "node1")
	assert.Equal(t, "node1/audit", sub.GetName())
	assert.True(t, sub.IsExclusivelyAccessible())
	assert.True(t, sub.IsDurable())
}
