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
	"sync"
)

type MemoryStore struct {
	faults        map[string][]Fault // service -> faults, oldest first
	maxPerService int
	mu            sync.RWMutex
}

func NewMemoryStore(maxPerService int) *MemoryStore {
	return &MemoryStore{
		faults:        make(map[string][]Fault),
		maxPerService: maxPerService,
	}
}

func (m *MemoryStore) Record(_ context.Context, f Fault) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	faults := m.faults[f.Service]
	if m.maxPerService > 0 && len(faults) >= m.maxPerService {
		faults = faults[len(faults)-m.maxPerService+1:]
	}
	m.faults[f.Service] = append(faults, f)
	return nil
}

func (m *MemoryStore) List(_ context.Context, service string, limit int) ([]Fault, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Fault
	if service != "" {
		out = append(out, m.faults[service]...)
	} else {
		for _, faults := range m.faults {
			out = append(out, faults...)
		}
	}
	newestFirst(out)
	return clip(out, limit), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
