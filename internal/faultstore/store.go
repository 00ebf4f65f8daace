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

// Package faultstore journals poison messages so operators can inspect them
// after the broker has moved on.
package faultstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const (
	DefaultMaxPerService = 1000
	DefaultBodyLimit     = 4096
	DefaultTTL           = 7 * 24 * time.Hour
)

// Fault is one journaled poison message.
type Fault struct {
	ID              string         `json:"id"`
	Service         string         `json:"service"`
	Destination     string         `json:"destination"`
	DestinationType string         `json:"destination_type"`
	MessageID       string         `json:"message_id,omitempty"`
	CorrelationID   string         `json:"correlation_id,omitempty"`
	Reason          string         `json:"reason"`
	Headers         map[string]any `json:"headers,omitempty"`
	Body            string         `json:"body,omitempty"`
	Truncated       bool           `json:"truncated,omitempty"`
	Time            time.Time      `json:"time"`
}

type Store interface {
	Record(ctx context.Context, f Fault) error
	// List returns the newest faults first. An empty service lists all of them.
	List(ctx context.Context, service string, limit int) ([]Fault, error)
	Close() error
}

type Config struct {
	Store         string
	Path          string
	RedisAddr     string
	MaxPerService int
	TTL           time.Duration
	BodyLimit     int
}

func DefaultConfig() Config {
	return Config{
		Store:         "memory",
		MaxPerService: DefaultMaxPerService,
		TTL:           DefaultTTL,
		BodyLimit:     DefaultBodyLimit,
	}
}

func NewStore(cfg Config, logger *slog.Logger) (Store, error) {
	if cfg.MaxPerService <= 0 {
		cfg.MaxPerService = DefaultMaxPerService
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	logger = logger.With("component", "faultstore", "store", cfg.Store)

	switch cfg.Store {
	case "memory", "":
		return NewMemoryStore(cfg.MaxPerService), nil
	case "bolt", "bbolt":
		if cfg.Path == "" {
			return nil, &core.ConfigError{Scope: "faults", Param: "path", Err: errors.New("required when store=bolt")}
		}
		return OpenBoltStore(cfg.Path, cfg.MaxPerService, logger)
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, &core.ConfigError{Scope: "faults", Param: "redis_addr", Err: errors.New("required when store=redis")}
		}
		return NewRedisStore(cfg.RedisAddr, cfg.MaxPerService, cfg.TTL, logger)
	default:
		return nil, &core.ConfigError{Scope: "faults", Param: "store", Err: fmt.Errorf("unknown fault store %q", cfg.Store)}
	}
}

// NewFault captures msg as it arrived. Bodies longer than bodyLimit bytes are
// cut; a non-positive limit keeps the whole body.
func NewFault(service string, dest core.Destination, msg *core.Message, headers map[string]any, reason error, bodyLimit int) Fault {
	f := Fault{
		ID:              ulid.Make().String(),
		Service:         service,
		Destination:     dest.Name,
		DestinationType: dest.Type.String(),
		Headers:         headers,
		Time:            time.Now().UTC(),
	}
	if reason != nil {
		f.Reason = reason.Error()
	}
	if msg == nil {
		return f
	}
	f.MessageID = msg.MessageID
	f.CorrelationID = msg.CorrelationID

	var body string
	switch msg.Kind {
	case core.BodyText:
		body = msg.Text
	case core.BodyMap:
		keys := make([]string, 0, len(msg.Map))
		for k := range msg.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				body += ", "
			}
			body += k + "=" + core.FormatValue(msg.Map[k])
		}
	default:
		body = string(msg.Bytes)
	}
	if bodyLimit > 0 && len(body) > bodyLimit {
		body = body[:bodyLimit]
		f.Truncated = true
	}
	f.Body = body
	return f
}

// newestFirst sorts by ULID, which orders by record time.
func newestFirst(faults []Fault) {
	sort.Slice(faults, func(i, j int) bool { return faults[i].ID > faults[j].ID })
}

func clip(faults []Fault, limit int) []Fault {
	if limit > 0 && len(faults) > limit {
		return faults[:limit]
	}
	return faults
}
