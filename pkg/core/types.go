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
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

type DestinationType int

const (
	DestinationGeneric DestinationType = iota
	DestinationQueue
	DestinationTopic
)

func (t DestinationType) String() string {
	switch t {
	case DestinationQueue:
		return "queue"
	case DestinationTopic:
		return "topic"
	default:
		return "generic"
	}
}

// ParseDestinationType accepts queue, topic or generic in any case. The empty
// string yields def.
func ParseDestinationType(s string, def DestinationType) (DestinationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "queue":
		return DestinationQueue, nil
	case "topic":
		return DestinationTopic, nil
	case "generic":
		return DestinationGeneric, nil
	default:
		return def, fmt.Errorf("unknown destination type %q", s)
	}
}

type Destination struct {
	Name      string
	Type      DestinationType
	Temporary bool
}

func (d Destination) Key() string {
	return d.Type.String() + "://" + d.Name
}

func (d Destination) String() string {
	return d.Key()
}

type CacheLevel int

const (
	CacheNone CacheLevel = iota
	CacheConnection
	CacheSession
	CacheProducer
)

func (l CacheLevel) String() string {
	switch l {
	case CacheConnection:
		return "connection"
	case CacheSession:
		return "session"
	case CacheProducer:
		return "producer"
	default:
		return "none"
	}
}

func ParseCacheLevel(s string, def CacheLevel) (CacheLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "none":
		return CacheNone, nil
	case "connection":
		return CacheConnection, nil
	case "session":
		return CacheSession, nil
	case "producer":
		return CacheProducer, nil
	default:
		return def, fmt.Errorf("unknown cache level %q", s)
	}
}

type DeliveryMode int

const (
	NonPersistent DeliveryMode = 1
	Persistent    DeliveryMode = 2
)

const DefaultPriority = 4

type AckMode int

const (
	AckAuto AckMode = iota + 1
	AckClient
	AckDupsOK
)

func ParseAckMode(s string, def AckMode) (AckMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "AUTO_ACKNOWLEDGE", "AUTO":
		return AckAuto, nil
	case "CLIENT_ACKNOWLEDGE", "CLIENT":
		return AckClient, nil
	case "DUPS_OK_ACKNOWLEDGE", "DUPS_OK":
		return AckDupsOK, nil
	default:
		return def, fmt.Errorf("unknown acknowledge mode %q", s)
	}
}

// ConnectionKind mirrors the queue/topic/unknown split of pre-1.1 providers.
type ConnectionKind int

const (
	ConnectionGeneric ConnectionKind = iota
	ConnectionQueue
	ConnectionTopic
)

type BodyKind int

const (
	BodyBytes BodyKind = iota
	BodyText
	BodyMap
)

func (k BodyKind) String() string {
	switch k {
	case BodyText:
		return "text"
	case BodyMap:
		return "map"
	default:
		return "bytes"
	}
}

// Message is a broker-neutral JMS message as it moves through the bridge.
type Message struct {
	MessageID     string
	CorrelationID string
	Destination   *Destination
	ReplyTo       *Destination
	DeliveryMode  DeliveryMode
	Priority      int
	Expiration    time.Time
	Timestamp     time.Time
	Redelivered   bool
	Type          string
	Properties    map[string]any

	Kind  BodyKind
	Bytes []byte
	Text  string
	Map   map[string]any
}

func NewTextMessage(text string) *Message {
	return &Message{Kind: BodyText, Text: text, Properties: map[string]any{}}
}

func NewBytesMessage(b []byte) *Message {
	return &Message{Kind: BodyBytes, Bytes: b, Properties: map[string]any{}}
}

func NewMapMessage(m map[string]any) *Message {
	return &Message{Kind: BodyMap, Map: m, Properties: map[string]any{}}
}

func (m *Message) SetProperty(name string, v any) {
	if m.Properties == nil {
		m.Properties = map[string]any{}
	}
	m.Properties[name] = v
}

// StringProperty renders a scalar property as a string.
func (m *Message) StringProperty(name string) (string, bool) {
	v, ok := m.Properties[name]
	if !ok || v == nil {
		return "", false
	}
	return FormatValue(v), true
}

func (m *Message) Expired(now time.Time) bool {
	return !m.Expiration.IsZero() && m.Expiration.Before(now)
}

// Size is the body length used for byte metrics and size limits. Map bodies
// count each key plus the encoded width of its value.
func (m *Message) Size() int64 {
	switch m.Kind {
	case BodyText:
		return int64(len(m.Text))
	case BodyMap:
		var n int64
		for k, v := range m.Map {
			n += int64(len(k))
			switch x := v.(type) {
			case bool, int8, uint8:
				n++
			case int16, uint16:
				n += 2
			case int32, uint32, float32:
				n += 4
			case int, int64, uint, uint64, float64:
				n += 8
			case string:
				n += int64(len(x))
			case []byte:
				n += int64(len(x))
			default:
				n += int64(utf8.RuneCountInString(FormatValue(x)))
			}
		}
		return n
	default:
		return int64(len(m.Bytes))
	}
}

func (m *Message) Clone() *Message {
	c := *m
	if m.Destination != nil {
		d := *m.Destination
		c.Destination = &d
	}
	if m.ReplyTo != nil {
		d := *m.ReplyTo
		c.ReplyTo = &d
	}
	c.Properties = make(map[string]any, len(m.Properties))
	for k, v := range m.Properties {
		c.Properties[k] = v
	}
	if m.Bytes != nil {
		c.Bytes = append([]byte(nil), m.Bytes...)
	}
	if m.Map != nil {
		c.Map = make(map[string]any, len(m.Map))
		for k, v := range m.Map {
			c.Map[k] = v
		}
	}
	return &c
}

// Payload is the body handed to the engine after codec conversion.
type Payload struct {
	Kind  BodyKind
	Bytes []byte
	Text  string
	Map   map[string]any
}

func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return strconv.FormatInt(x.UnixMilli(), 10)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
