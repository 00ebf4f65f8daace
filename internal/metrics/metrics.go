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

// Package metrics keeps the transport counters and renders them in the
// Prometheus text exposition format.
//
// Receive-side counters are keyed by service name, send-side counters by
// destination (queue://Name or topic://Name).
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type labelCounter struct {
	vals sync.Map // key string → *atomic.Int64
}

func (lc *labelCounter) get(key string) *atomic.Int64 {
	v, _ := lc.vals.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

func (lc *labelCounter) Inc(key string) { lc.get(key).Add(1) }

func (lc *labelCounter) Add(key string, n int64) { lc.get(key).Add(n) }

func (lc *labelCounter) Value(key string) int64 {
	v, ok := lc.vals.Load(key)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (lc *labelCounter) Total() int64 {
	var n int64
	lc.Each(func(_ string, v int64) { n += v })
	return n
}

// Each visits keys in sorted order.
func (lc *labelCounter) Each(fn func(key string, val int64)) {
	type kv struct {
		k string
		v int64
	}
	var all []kv
	lc.vals.Range(func(k, v any) bool {
		all = append(all, kv{k.(string), v.(*atomic.Int64).Load()})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].k < all[j].k })
	for _, e := range all {
		fn(e.k, e.v)
	}
}

type sizeStats struct {
	mu    sync.Mutex
	min   int64
	max   int64
	sum   int64
	count int64
}

func (s *sizeStats) observe(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 || n < s.min {
		s.min = n
	}
	if n > s.max {
		s.max = n
	}
	s.sum += n
	s.count++
}

func (s *sizeStats) snapshot() (min, max int64, avg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0, 0, 0
	}
	return s.min, s.max, float64(s.sum) / float64(s.count)
}

type Collector struct {
	MessagesReceived  labelCounter
	FaultsReceiving   labelCounter
	BytesReceived     labelCounter
	TimeoutsReceiving labelCounter

	MessagesSent    labelCounter
	FaultsSending   labelCounter
	BytesSent       labelCounter
	TimeoutsSending labelCounter

	received sizeStats
	sent     sizeStats
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) IncMessagesReceived(service string) { c.MessagesReceived.Inc(service) }

func (c *Collector) IncFaultsReceiving(service string) { c.FaultsReceiving.Inc(service) }

func (c *Collector) IncTimeoutsReceiving(service string) { c.TimeoutsReceiving.Inc(service) }

func (c *Collector) AddBytesReceived(service string, n int64) {
	c.BytesReceived.Add(service, n)
	c.received.observe(n)
}

func (c *Collector) IncMessagesSent(dest string) { c.MessagesSent.Inc(dest) }

func (c *Collector) IncFaultsSending(dest string) { c.FaultsSending.Inc(dest) }

func (c *Collector) IncTimeoutsSending(dest string) { c.TimeoutsSending.Inc(dest) }

func (c *Collector) AddBytesSent(dest string, n int64) {
	c.BytesSent.Add(dest, n)
	c.sent.observe(n)
}

type Snapshot struct {
	MessagesReceived  int64   `json:"messages_received"`
	FaultsReceiving   int64   `json:"faults_receiving"`
	BytesReceived     int64   `json:"bytes_received"`
	TimeoutsReceiving int64   `json:"timeouts_receiving"`
	MessagesSent      int64   `json:"messages_sent"`
	FaultsSending     int64   `json:"faults_sending"`
	BytesSent         int64   `json:"bytes_sent"`
	TimeoutsSending   int64   `json:"timeouts_sending"`
	MinSizeReceived   int64   `json:"min_size_received"`
	MaxSizeReceived   int64   `json:"max_size_received"`
	AvgSizeReceived   float64 `json:"avg_size_received"`
	MinSizeSent       int64   `json:"min_size_sent"`
	MaxSizeSent       int64   `json:"max_size_sent"`
	AvgSizeSent       float64 `json:"avg_size_sent"`
}

func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		MessagesReceived:  c.MessagesReceived.Total(),
		FaultsReceiving:   c.FaultsReceiving.Total(),
		BytesReceived:     c.BytesReceived.Total(),
		TimeoutsReceiving: c.TimeoutsReceiving.Total(),
		MessagesSent:      c.MessagesSent.Total(),
		FaultsSending:     c.FaultsSending.Total(),
		BytesSent:         c.BytesSent.Total(),
		TimeoutsSending:   c.TimeoutsSending.Total(),
	}
	s.MinSizeReceived, s.MaxSizeReceived, s.AvgSizeReceived = c.received.snapshot()
	s.MinSizeSent, s.MaxSizeSent, s.AvgSizeSent = c.sent.snapshot()
	return s
}

func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)

		var b strings.Builder
		families := []struct {
			name, help, label string
			lc                *labelCounter
		}{
			{"jms_bridge_messages_received_total", "Messages received per service", "service", &c.MessagesReceived},
			{"jms_bridge_faults_receiving_total", "Receive faults per service", "service", &c.FaultsReceiving},
			{"jms_bridge_bytes_received_total", "Bytes received per service", "service", &c.BytesReceived},
			{"jms_bridge_timeouts_receiving_total", "Synchronous reply timeouts per reply destination", "destination", &c.TimeoutsReceiving},
			{"jms_bridge_messages_sent_total", "Messages sent per destination", "destination", &c.MessagesSent},
			{"jms_bridge_faults_sending_total", "Send faults per destination", "destination", &c.FaultsSending},
			{"jms_bridge_bytes_sent_total", "Bytes sent per destination", "destination", &c.BytesSent},
			{"jms_bridge_timeouts_sending_total", "Send timeouts per destination", "destination", &c.TimeoutsSending},
		}
		for _, f := range families {
			writeFamily(&b, f.name, f.help, "counter", func(fn func(labels, val string)) {
				f.lc.Each(func(key string, val int64) {
					fn(fmt.Sprintf(`%s=%q`, f.label, key), fmt.Sprintf("%d", val))
				})
			})
		}

		s := c.Snapshot()
		for _, g := range []struct {
			name, help string
			val        float64
		}{
			{"jms_bridge_message_size_received_min_bytes", "Smallest message received", float64(s.MinSizeReceived)},
			{"jms_bridge_message_size_received_max_bytes", "Largest message received", float64(s.MaxSizeReceived)},
			{"jms_bridge_message_size_received_avg_bytes", "Average message received", s.AvgSizeReceived},
			{"jms_bridge_message_size_sent_min_bytes", "Smallest message sent", float64(s.MinSizeSent)},
			{"jms_bridge_message_size_sent_max_bytes", "Largest message sent", float64(s.MaxSizeSent)},
			{"jms_bridge_message_size_sent_avg_bytes", "Average message sent", s.AvgSizeSent},
		} {
			fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %s\n", g.name, g.help, g.name, g.name, formatFloat(g.val))
		}

		fmt.Fprint(w, b.String())
	})
}

// writeFamily writes one metric family, skipping it when it has no samples.
func writeFamily(b *strings.Builder, name, help, typ string, fill func(fn func(labels, val string))) {
	var lines []string
	fill(func(labels, val string) {
		lines = append(lines, fmt.Sprintf("%s{%s} %s\n", name, labels, val))
	})
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
	for _, l := range lines {
		b.WriteString(l)
	}
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
