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

package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorMatchesCorrelationID(t *testing.T) {
	sel, err := ParseSelector(CorrelationSelector("abc-1"))
	require.NoError(t, err)

	m := NewTextMessage("x")
	m.CorrelationID = "abc-1"
	assert.True(t, sel.Matches(m))

	m.CorrelationID = "abc-2"
	assert.False(t, sel.Matches(m))
}

func TestSelectorQuotesAndConjunction(t *testing.T) {
	sel, err := ParseSelector(CorrelationSelector("it's") + " AND region <> 'eu' AND retries = 3")
	require.NoError(t, err)

	m := NewTextMessage("x")
	m.CorrelationID = "it's"
	m.SetProperty("region", "us")
	m.SetProperty("retries", 3)
	assert.True(t, sel.Matches(m))

	m.SetProperty("region", "eu")
	assert.False(t, sel.Matches(m))
}

func TestSelectorRejectsUnsupportedSyntax(t *testing.T) {
	for _, s := range []string{"a = 'x' OR b = 'y'", "a > 3", "a = ", "a = 'x' AND"} {
		_, err := ParseSelector(s)
		assert.Error(t, err, s)
	}
	_, err := ParseSelector("a LIKE 'x%'")
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestEmptySelectorMatchesEverything(t *testing.T) {
	sel, err := ParseSelector("  ")
	require.NoError(t, err)
	assert.True(t, sel.Matches(NewBytesMessage(nil)))
}

func TestMessageSize(t *testing.T) {
	assert.Equal(t, int64(4), NewTextMessage("ping").Size())
	assert.Equal(t, int64(3), NewBytesMessage([]byte{1, 2, 3}).Size())

	m := NewMapMessage(map[string]any{"a": int32(1), "bb": "xyz", "c": true})
	assert.Equal(t, int64(1+4+2+3+1+1), m.Size())
}

func TestMessageExpired(t *testing.T) {
	now := time.Now()
	m := NewTextMessage("x")
	assert.False(t, m.Expired(now))

	m.Expiration = now.Add(-time.Second)
	assert.True(t, m.Expired(now))

	m.Expiration = now.Add(time.Minute)
	assert.False(t, m.Expired(now))
}

func TestPrepareForSend(t *testing.T) {
	now := time.Now()
	m := NewTextMessage("x")
	PrepareForSend(m, Destination{Name: "Q", Type: DestinationQueue}, SendOptions{Priority: 7, TimeToLive: time.Minute}, now)

	assert.NotEmpty(t, m.MessageID)
	assert.Equal(t, "Q", m.Destination.Name)
	assert.Equal(t, Persistent, m.DeliveryMode)
	assert.Equal(t, 7, m.Priority)
	assert.Equal(t, now.Add(time.Minute), m.Expiration)
}

func TestParseEnums(t *testing.T) {
	lvl, err := ParseCacheLevel("Producer", CacheNone)
	require.NoError(t, err)
	assert.Equal(t, CacheProducer, lvl)

	_, err = ParseCacheLevel("consumer", CacheNone)
	assert.Error(t, err)

	dt, err := ParseDestinationType("", DestinationQueue)
	require.NoError(t, err)
	assert.Equal(t, DestinationQueue, dt)

	ack, err := ParseAckMode("CLIENT_ACKNOWLEDGE", AckAuto)
	require.NoError(t, err)
	assert.Equal(t, AckClient, ack)
}

func TestErrorTaxonomyUnwraps(t *testing.T) {
	err := &SendError{Destination: Destination{Name: "Q", Type: DestinationQueue}, Err: ErrMissingBinding}
	assert.ErrorIs(t, err, ErrMissingBinding)
	assert.Contains(t, err.Error(), "queue://Q")

	assert.True(t, IsTransient(&TransientBrokerError{Factory: "f", Op: "connect", Err: errors.New("refused")}))
	assert.True(t, IsConfig(&ConfigError{Scope: "svc", Err: ErrFactoryNotFound}))
}
