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

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/contenttype"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/sender"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeForwarder struct {
	targets []string
	sent    []*sender.Outbound
	err     error
}

func (f *fakeForwarder) Send(_ context.Context, target string, out *sender.Outbound) error {
	f.targets = append(f.targets, target)
	f.sent = append(f.sent, out)
	return f.err
}

func table(t *testing.T, service string, route routing.Route) *routing.Table {
	t.Helper()
	b, err := routing.NewBinding(service, map[string]string{jms.ParamDestination: "In"}, contenttype.Config{}, route)
	require.NoError(t, err)
	tbl := routing.NewTable()
	tbl.Add(b)
	return tbl
}

func request(service string) *core.RequestContext {
	msg := core.NewTextMessage("hello")
	msg.MessageID = "ID:1"
	msg.Priority = 6
	msg.SetProperty("Content-Type", "text/plain")
	msg.SetProperty("tenant", "acme")
	return &core.RequestContext{
		Service:             service,
		Message:             msg,
		Payload:             &core.Payload{Kind: core.BodyText, Text: "hello"},
		ContentType:         "text/plain",
		ContentTypeProperty: "Content-Type",
	}
}

func TestEchoRepliesWithPayload(t *testing.T) {
	e := New(table(t, "echo", routing.Route{Action: ActionEcho}), nil, testLogger())
	res, err := e.HandleIncomingMessage(context.Background(), request("echo"), nil, "", "text/plain")
	require.NoError(t, err)
	require.NotNil(t, res.Reply)
	assert.Equal(t, "hello", res.Reply.Text)
	assert.Equal(t, "text/plain", res.ReplyContentType)
}

func TestForwardSendsToTarget(t *testing.T) {
	fwd := &fakeForwarder{}
	e := New(table(t, "relay", routing.Route{Action: ActionForward, Target: "jms:/Out"}), fwd, testLogger())

	res, err := e.HandleIncomingMessage(context.Background(), request("relay"), nil, "urn:op", "text/plain")
	require.NoError(t, err)
	assert.Nil(t, res.Reply)
	require.Len(t, fwd.sent, 1)
	assert.Equal(t, "jms:/Out", fwd.targets[0])
	out := fwd.sent[0]
	assert.Equal(t, "ID:1", out.CorrelationID)
	assert.Equal(t, "urn:op", out.Action)
	assert.Equal(t, "acme", out.Headers["tenant"])
	assert.Equal(t, 6, out.Headers[jms.HeaderPriority])
	assert.NotContains(t, out.Headers, "Content-Type")
}

func TestForwardFailureIsReturned(t *testing.T) {
	fwd := &fakeForwarder{err: errors.New("broker gone")}
	e := New(table(t, "relay", routing.Route{Action: ActionForward, Target: "jms:/Out"}), fwd, testLogger())
	_, err := e.HandleIncomingMessage(context.Background(), request("relay"), nil, "", "text/plain")
	assert.ErrorContains(t, err, "broker gone")
}

func TestForwardWithoutTargetIsConfigError(t *testing.T) {
	e := New(table(t, "relay", routing.Route{Action: ActionForward}), &fakeForwarder{}, testLogger())
	_, err := e.HandleIncomingMessage(context.Background(), request("relay"), nil, "", "text/plain")
	assert.True(t, core.IsConfig(err))
}

func TestUnknownServiceAndAction(t *testing.T) {
	e := New(table(t, "svc", routing.Route{Action: "teleport"}), nil, testLogger())

	_, err := e.HandleIncomingMessage(context.Background(), request("other"), nil, "", "")
	assert.ErrorIs(t, err, core.ErrServiceNotFound)

	_, err = e.HandleIncomingMessage(context.Background(), request("svc"), nil, "", "")
	assert.True(t, core.IsConfig(err))
	assert.False(t, ValidAction("teleport"))
	assert.True(t, ValidAction("Forward"))
}

func TestServiceFromContext(t *testing.T) {
	e := New(table(t, "echo", routing.Route{}), nil, testLogger())
	ctx := core.WithService(context.Background(), "echo")
	res, err := e.HandleIncomingMessage(ctx, request(""), nil, "", "text/plain")
	require.NoError(t, err)
	assert.NotNil(t, res.Reply)

	res, err = e.HandleIncomingMessage(context.Background(), request(""), nil, "", "text/plain")
	require.NoError(t, err)
	assert.Nil(t, res.Reply)
}
