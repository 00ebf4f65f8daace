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

package faultstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	faultKeyPrefix = "jms-bridge:faults:"
	servicesKey    = "jms-bridge:faults:services"
)

// RedisStore keeps a capped list per service, newest at the head.
type RedisStore struct {
	client        *redis.Client
	maxPerService int
	ttl           time.Duration
	logger        *slog.Logger
}

func NewRedisStore(addr string, maxPerService int, ttl time.Duration, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("faultstore: redis connection failed: %w", err)
	}

	logger.Info("fault journal connected", "addr", addr)
	return &RedisStore{client: client, maxPerService: maxPerService, ttl: ttl, logger: logger}, nil
}

func (r *RedisStore) faultKey(service string) string {
	return faultKeyPrefix + service
}

func (r *RedisStore) Record(ctx context.Context, f Fault) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("faultstore: marshal fault %s: %w", f.ID, err)
	}
	key := r.faultKey(f.Service)

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	if r.maxPerService > 0 {
		pipe.LTrim(ctx, key, 0, int64(r.maxPerService-1))
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.SAdd(ctx, servicesKey, f.Service)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("faultstore: record fault %s: %w", f.ID, err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context, service string, limit int) ([]Fault, error) {
	services := []string{service}
	if service == "" {
		var err error
		if services, err = r.client.SMembers(ctx, servicesKey).Result(); err != nil {
			return nil, fmt.Errorf("faultstore: list services: %w", err)
		}
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	var out []Fault
	for _, svc := range services {
		results, err := r.client.LRange(ctx, r.faultKey(svc), 0, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("faultstore: list %s: %w", svc, err)
		}
		for _, data := range results {
			var f Fault
			if err := json.Unmarshal([]byte(data), &f); err != nil {
				r.logger.Warn("skipping unreadable fault", "service", svc, "error", err)
				continue
			}
			out = append(out, f)
		}
	}
	newestFirst(out)
	return clip(out, limit), nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
