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

// Package codec converts between broker message bodies and engine payloads.
package codec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const MapContentType = "application/x-jms-map"

type Codec interface {
	Decode(msg *core.Message, contentType string) (*core.Payload, error)
	Encode(p *core.Payload, kind core.BodyKind) (*core.Message, error)
}

type Default struct{}

func (Default) Decode(msg *core.Message, contentType string) (*core.Payload, error) {
	switch msg.Kind {
	case core.BodyText:
		if !utf8.ValidString(msg.Text) {
			return nil, fmt.Errorf("text body is not valid UTF-8: %w", core.ErrPayloadConversion)
		}
		return &core.Payload{Kind: core.BodyText, Text: msg.Text}, nil
	case core.BodyMap:
		m := make(map[string]any, len(msg.Map))
		for k, v := range msg.Map {
			m[k] = v
		}
		return &core.Payload{Kind: core.BodyMap, Map: m}, nil
	case core.BodyBytes:
		if isMapType(contentType) {
			m, err := DecodeMap(msg.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", err, core.ErrPayloadConversion)
			}
			return &core.Payload{Kind: core.BodyMap, Map: m}, nil
		}
		return &core.Payload{Kind: core.BodyBytes, Bytes: append([]byte(nil), msg.Bytes...)}, nil
	default:
		return nil, fmt.Errorf("unknown body kind %d: %w", msg.Kind, core.ErrPayloadConversion)
	}
}

// Encode builds a message of the requested kind, converting the payload when
// the kinds differ.
func (Default) Encode(p *core.Payload, kind core.BodyKind) (*core.Message, error) {
	if p == nil {
		p = &core.Payload{Kind: kind}
	}
	switch kind {
	case core.BodyText:
		switch p.Kind {
		case core.BodyText:
			return core.NewTextMessage(p.Text), nil
		case core.BodyBytes:
			if !utf8.Valid(p.Bytes) {
				return nil, fmt.Errorf("bytes payload is not valid UTF-8: %w", core.ErrPayloadConversion)
			}
			return core.NewTextMessage(string(p.Bytes)), nil
		}
	case core.BodyBytes:
		switch p.Kind {
		case core.BodyBytes:
			return core.NewBytesMessage(append([]byte(nil), p.Bytes...)), nil
		case core.BodyText:
			return core.NewBytesMessage([]byte(p.Text)), nil
		case core.BodyMap:
			b, err := EncodeMap(p.Map)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", err, core.ErrPayloadConversion)
			}
			return core.NewBytesMessage(b), nil
		}
	case core.BodyMap:
		switch p.Kind {
		case core.BodyMap:
			return core.NewMapMessage(p.Map), nil
		case core.BodyBytes:
			m, err := DecodeMap(p.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", err, core.ErrPayloadConversion)
			}
			return core.NewMapMessage(m), nil
		}
	}
	return nil, fmt.Errorf("cannot encode %s payload as %s message: %w", p.Kind, kind, core.ErrPayloadConversion)
}

func isMapType(contentType string) bool {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mt), MapContentType)
}
