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

package admin

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/listener"
)

const subscriberBuffer = 64

// Event is one service state change as streamed to admin clients.
type Event struct {
	ID      string         `json:"id"`
	Service string         `json:"service"`
	State   listener.State `json:"state"`
	Time    time.Time      `json:"time"`
}

// Hub fans state changes out to stream subscribers. Slow subscribers lose
// events rather than holding up the listener.
type Hub struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, subs: make(map[chan Event]struct{})}
}

// ServiceStateChanged is called with listener locks held and must not block.
func (h *Hub) ServiceStateChanged(service string, state listener.State) {
	evt := Event{
		ID:      uuid.New().String(),
		Service: service,
		State:   state,
		Time:    time.Now().UTC(),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("event subscriber full, dropping event", "service", service, "state", state.String())
		}
	}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
