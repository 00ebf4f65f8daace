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

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

func TestContextHandlerAddsPrincipalAndService(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil))).With("component", "listener")

	ctx := core.WithService(core.WithPrincipal(context.Background(), "wso2carbon"), "echo")
	logger.InfoContext(ctx, "started")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "wso2carbon", rec["principal"])
	assert.Equal(t, "echo", rec["service"])
	assert.Equal(t, "listener", rec["component"])
}

func TestTracerLogsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracer(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	msg := core.NewTextMessage("ping")
	msg.MessageID = "ID:1"
	msg.ReplyTo = &core.Destination{Name: "ReplyQ", Type: core.DestinationQueue}
	tr.Received("echo", msg, "text/plain")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "ID:1", rec["message_id"])
	assert.Equal(t, "queue://ReplyQ", rec["reply_to"])
	assert.EqualValues(t, 4, rec["payload_size"])

	var quiet bytes.Buffer
	NewTracer(slog.New(slog.NewJSONHandler(&quiet, nil))).Sent(core.Destination{Name: "Q"}, msg)
	assert.Zero(t, quiet.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
