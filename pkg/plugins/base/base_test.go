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

package base

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

type tally struct {
	acked  []string
	nacked []string
}

func (t *tally) delivery(id string) Delivery {
	return Delivery{
		Ack:  func(context.Context) error { t.acked = append(t.acked, id); return nil },
		Nack: func(context.Context) error { t.nacked = append(t.nacked, id); return nil },
	}
}

func TestLedgerAutoAckSettlesImmediately(t *testing.T) {
	ctx := context.Background()
	var tl tally
	l := NewLedger(core.SessionOptions{})

	require.NoError(t, l.Delivered(ctx, tl.delivery("a")))
	assert.Equal(t, []string{"a"}, tl.acked)

	sent := 0
	require.NoError(t, l.Send(ctx, func(context.Context) error { sent++; return nil }))
	assert.Equal(t, 1, sent)

	err := l.Commit(ctx)
	assert.ErrorIs(t, err, core.ErrUnsupported)
}

func TestLedgerClientAck(t *testing.T) {
	ctx := context.Background()
	var tl tally
	l := NewLedger(core.SessionOptions{AckMode: core.AckClient})

	require.NoError(t, l.Delivered(ctx, tl.delivery("a")))
	require.NoError(t, l.Delivered(ctx, tl.delivery("b")))
	assert.Empty(t, tl.acked)

	require.NoError(t, l.Acknowledge(ctx))
	assert.Equal(t, []string{"a", "b"}, tl.acked)

	require.NoError(t, l.Delivered(ctx, tl.delivery("c")))
	require.NoError(t, l.Recover(ctx))
	assert.Equal(t, []string{"c"}, tl.nacked)
}

func TestLedgerCommitFlushesSendsThenAcks(t *testing.T) {
	ctx := context.Background()
	var tl tally
	var order []string
	l := NewLedger(core.SessionOptions{Transacted: true})
	assert.True(t, l.Transacted())

	require.NoError(t, l.Delivered(ctx, tl.delivery("in")))
	require.NoError(t, l.Send(ctx, func(context.Context) error { order = append(order, "one"); return nil }))
	require.NoError(t, l.Send(ctx, func(context.Context) error { order = append(order, "two"); return nil }))
	assert.Empty(t, order)

	require.NoError(t, l.Commit(ctx))
	assert.Equal(t, []string{"one", "two"}, order)
	assert.Equal(t, []string{"in"}, tl.acked)
}

func TestLedgerCommitSendFailureReleasesDeliveries(t *testing.T) {
	ctx := context.Background()
	var tl tally
	boom := errors.New("boom")
	l := NewLedger(core.SessionOptions{Transacted: true})

	require.NoError(t, l.Delivered(ctx, tl.delivery("in")))
	require.NoError(t, l.Send(ctx, func(context.Context) error { return boom }))

	err := l.Commit(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, tl.acked)
	assert.Equal(t, []string{"in"}, tl.nacked)
}

func TestLedgerRollbackDropsSends(t *testing.T) {
	ctx := context.Background()
	var tl tally
	sent := 0
	l := NewLedger(core.SessionOptions{Transacted: true})

	require.NoError(t, l.Delivered(ctx, tl.delivery("in")))
	require.NoError(t, l.Send(ctx, func(context.Context) error { sent++; return nil }))
	require.NoError(t, l.Rollback(ctx))
	require.NoError(t, l.Commit(ctx))

	assert.Zero(t, sent)
	assert.Equal(t, []string{"in"}, tl.nacked)
}

func TestLedgerCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	var tl tally
	l := NewLedger(core.SessionOptions{AckMode: core.AckClient})
	require.NoError(t, l.Delivered(ctx, tl.delivery("a")))

	require.NoError(t, l.Close(ctx))
	require.NoError(t, l.Close(ctx))
	assert.True(t, l.Closed())
	assert.Equal(t, []string{"a"}, tl.nacked)

	err := l.Send(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, core.ErrClosed)
	assert.ErrorIs(t, l.Acknowledge(ctx), core.ErrClosed)
}

func TestDoneKeepsFirstError(t *testing.T) {
	d := NewDone()
	assert.False(t, d.Closed())

	first := errors.New("first")
	d.Close(first)
	d.Close(errors.New("second"))

	assert.True(t, d.Closed())
	assert.Equal(t, first, d.Err())
	select {
	case <-d.C():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestHeaderPropertiesRoundTrip(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	msg := core.NewTextMessage("hi")
	msg.MessageID = "ID:1"
	msg.CorrelationID = "corr"
	msg.ReplyTo = &core.Destination{Name: "Replies", Type: core.DestinationQueue}
	msg.Type = "order"
	msg.DeliveryMode = core.Persistent
	msg.Priority = 7
	msg.Timestamp = now
	msg.Expiration = now.Add(time.Minute)
	msg.SetProperty("region", "eu")

	props := HeaderProperties(msg)
	assert.Equal(t, "text", props[PropBodyKind])
	assert.Equal(t, "queue://Replies", props[PropReplyTo])

	got := core.NewTextMessage("hi")
	ApplyHeaderProperties(got, props)
	assert.Equal(t, core.BodyText, BodyKind(props))
	assert.Equal(t, msg.MessageID, got.MessageID)
	assert.Equal(t, msg.CorrelationID, got.CorrelationID)
	assert.Equal(t, *msg.ReplyTo, *got.ReplyTo)
	assert.Equal(t, msg.Type, got.Type)
	assert.Equal(t, core.Persistent, got.DeliveryMode)
	assert.Equal(t, 7, got.Priority)
	assert.True(t, now.Equal(got.Timestamp))
	assert.True(t, msg.Expiration.Equal(got.Expiration))
	assert.Equal(t, "eu", got.Properties["region"])
	assert.NotContains(t, got.Properties, PropBodyKind)
}

func TestParseDestinationKey(t *testing.T) {
	d, ok := ParseDestinationKey("topic://prices")
	require.True(t, ok)
	assert.Equal(t, core.Destination{Name: "prices", Type: core.DestinationTopic}, d)

	_, ok = ParseDestinationKey("prices")
	assert.False(t, ok)
	_, ok = ParseDestinationKey("queue://")
	assert.False(t, ok)
}

func TestBodyEncoding(t *testing.T) {
	b, err := EncodeBody(core.NewMapMessage(map[string]any{"qty": int64(3), "sku": "A1"}))
	require.NoError(t, err)
	msg, err := DecodeBody(core.BodyMap, b)
	require.NoError(t, err)
	assert.Equal(t, "A1", msg.Map["sku"])

	b, err = EncodeBody(core.NewTextMessage("plain"))
	require.NoError(t, err)
	msg, err = DecodeBody(core.BodyText, b)
	require.NoError(t, err)
	assert.Equal(t, "plain", msg.Text)
}

func TestReceiveTimeoutAndClose(t *testing.T) {
	ctx := context.Background()
	ch := make(chan int, 1)
	done := make(chan struct{})

	_, ok, err := Receive(ctx, ch, done, 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	ch <- 9
	v, ok, err := Receive(ctx, ch, done, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 9, v)

	close(done)
	_, _, err = Receive(ctx, ch, done, time.Second)
	assert.ErrorIs(t, err, core.ErrClosed)
}
