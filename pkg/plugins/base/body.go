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
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/codec"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// EncodeBody flattens a message body for brokers that only carry bytes. Map
// bodies use the CBOR map encoding.
func EncodeBody(msg *core.Message) ([]byte, error) {
	switch msg.Kind {
	case core.BodyText:
		return []byte(msg.Text), nil
	case core.BodyMap:
		b, err := codec.EncodeMap(msg.Map)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return msg.Bytes, nil
	}
}

// DecodeBody builds a message of the given kind from broker bytes.
func DecodeBody(kind core.BodyKind, data []byte) (*core.Message, error) {
	switch kind {
	case core.BodyText:
		return core.NewTextMessage(string(data)), nil
	case core.BodyMap:
		m, err := codec.DecodeMap(data)
		if err != nil {
			return nil, err
		}
		return core.NewMapMessage(m), nil
	default:
		return core.NewBytesMessage(append([]byte(nil), data...)), nil
	}
}

// Receive waits up to timeout for a value on ch. ok is false when the wait
// elapsed. A closed ch or done channel yields core.ErrClosed.
func Receive[T any](ctx context.Context, ch <-chan T, done <-chan struct{}, timeout time.Duration) (v T, ok bool, err error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case v, open := <-ch:
		if !open {
			return v, false, core.ErrClosed
		}
		return v, true, nil
	case <-done:
		return v, false, core.ErrClosed
	case <-timer:
		return v, false, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}
