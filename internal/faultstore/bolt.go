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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.etcd.io/bbolt"
)

// BoltStore keeps one bucket per service. Keys are fault ids, so cursor
// order is record order.
type BoltStore struct {
	db            *bbolt.DB
	maxPerService int
	logger        *slog.Logger
}

func OpenBoltStore(path string, maxPerService int, logger *slog.Logger) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("faultstore: open %s: %w", path, err)
	}
	logger.Info("fault journal opened", "path", path)
	return &BoltStore{db: db, maxPerService: maxPerService, logger: logger}, nil
}

func (s *BoltStore) Record(_ context.Context, f Fault) error {
	val, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("faultstore: marshal fault %s: %w", f.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(f.Service))
		if err != nil {
			return err
		}
		if err := b.Put([]byte(f.ID), val); err != nil {
			return err
		}
		return s.trim(b)
	})
}

// trim drops the oldest entries beyond maxPerService.
func (s *BoltStore) trim(b *bbolt.Bucket) error {
	if s.maxPerService <= 0 {
		return nil
	}
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keys = append(keys, bytes.Clone(k))
	}
	for i := 0; i < len(keys)-s.maxPerService; i++ {
		if err := b.Delete(keys[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) List(_ context.Context, service string, limit int) ([]Fault, error) {
	var out []Fault
	err := s.db.View(func(tx *bbolt.Tx) error {
		collect := func(b *bbolt.Bucket) error {
			c := b.Cursor()
			n := 0
			for k, v := c.Last(); k != nil; k, v = c.Prev() {
				if limit > 0 && n >= limit {
					break
				}
				var f Fault
				if err := json.Unmarshal(v, &f); err != nil {
					s.logger.Warn("skipping unreadable fault", "key", string(k), "error", err)
					continue
				}
				out = append(out, f)
				n++
			}
			return nil
		}
		if service != "" {
			b := tx.Bucket([]byte(service))
			if b == nil {
				return nil
			}
			return collect(b)
		}
		return tx.ForEach(func(_ []byte, b *bbolt.Bucket) error {
			return collect(b)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("faultstore: list: %w", err)
	}
	newestFirst(out)
	return clip(out, limit), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
