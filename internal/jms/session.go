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

package jms

import (
	"sync"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// SessionHandle serializes every use of a session. Producers and consumers
// created from the session are covered by the same lock.
type SessionHandle struct {
	mu      sync.Mutex
	session core.Session
	closed  bool
}

func NewSessionHandle(s core.Session) *SessionHandle {
	return &SessionHandle{session: s}
}

// Acquire locks the session until release is called.
func (h *SessionHandle) Acquire() (core.Session, func()) {
	h.mu.Lock()
	return h.session, h.mu.Unlock
}

func (h *SessionHandle) Do(fn func(core.Session) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return core.ErrClosed
	}
	return fn(h.session)
}

func (h *SessionHandle) Transacted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session.Transacted()
}

func (h *SessionHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.session.Close()
}
