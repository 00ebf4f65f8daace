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

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

func TestMapBodyIsDeterministic(t *testing.T) {
	m := map[string]any{"b": "two", "a": uint64(1), "c": true}
	first, err := EncodeMap(m)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := EncodeMap(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	back, err := DecodeMap(first)
	require.NoError(t, err)
	assert.Equal(t, "two", back["b"])
	assert.Equal(t, true, back["c"])
}

func TestDecodeBytesAsMapWhenContentTypeSaysSo(t *testing.T) {
	raw, err := EncodeMap(map[string]any{"k": "v"})
	require.NoError(t, err)

	p, err := Default{}.Decode(core.NewBytesMessage(raw), MapContentType+"; charset=binary")
	require.NoError(t, err)
	assert.Equal(t, core.BodyMap, p.Kind)
	assert.Equal(t, "v", p.Map["k"])

	_, err = Default{}.Decode(core.NewBytesMessage([]byte{0xff, 0x00}), MapContentType)
	assert.ErrorIs(t, err, core.ErrPayloadConversion)
}

func TestDecodeRejectsInvalidText(t *testing.T) {
	_, err := Default{}.Decode(core.NewTextMessage(string([]byte{0xff, 0xfe})), "text/plain")
	assert.ErrorIs(t, err, core.ErrPayloadConversion)
}

func TestEncodeConversions(t *testing.T) {
	tests := []struct {
		name    string
		payload *core.Payload
		kind    core.BodyKind
		wantErr bool
	}{
		{"text to text", &core.Payload{Kind: core.BodyText, Text: "hi"}, core.BodyText, false},
		{"text to bytes", &core.Payload{Kind: core.BodyText, Text: "hi"}, core.BodyBytes, false},
		{"bytes to text", &core.Payload{Kind: core.BodyBytes, Bytes: []byte("hi")}, core.BodyText, false},
		{"invalid bytes to text", &core.Payload{Kind: core.BodyBytes, Bytes: []byte{0xff}}, core.BodyText, true},
		{"map to bytes", &core.Payload{Kind: core.BodyMap, Map: map[string]any{"a": "b"}}, core.BodyBytes, false},
		{"map to text", &core.Payload{Kind: core.BodyMap, Map: map[string]any{"a": "b"}}, core.BodyText, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Default{}.Encode(tt.payload, tt.kind)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrPayloadConversion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, msg.Kind)
		})
	}
}
