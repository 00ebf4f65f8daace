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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// Registry holds the named connection factories of one transport instance.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*ConnectionFactory
	order     []string
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		factories: make(map[string]*ConnectionFactory),
		logger:    logger,
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds f, replacing and stopping a factory registered under the same
// name. Two different names that normalize to the same key are rejected.
func (r *Registry) Register(f *ConnectionFactory) error {
	key := normalizeName(f.Name())
	if key == "" {
		return &core.ConfigError{Scope: "connection factory", Param: "name", Err: core.ErrNameNotFound}
	}
	r.mu.Lock()
	old, exists := r.factories[key]
	if exists && old.Name() != f.Name() {
		r.mu.Unlock()
		return &core.ConfigError{
			Scope: f.Name(),
			Param: "name",
			Err:   fmt.Errorf("collides with connection factory %q", old.Name()),
		}
	}
	r.factories[key] = f
	if !exists {
		r.order = append(r.order, key)
	}
	r.mu.Unlock()

	if exists && old != f {
		old.Stop()
	}
	r.logger.Info("registered connection factory", "name", f.Name(), "cache_level", f.CacheLevel().String())
	return nil
}

func (r *Registry) Lookup(name string) (*ConnectionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[normalizeName(name)]
	return f, ok
}

// LookupByProperties returns the first factory, in registration order, whose
// broker identifying properties all equal those in props. A property absent
// on both sides counts as equal.
func (r *Registry) LookupByProperties(props map[string]string) (*ConnectionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range r.order {
		f := r.factories[key]
		if propertiesMatch(f.Config().Properties, props) {
			return f, true
		}
	}
	return nil, false
}

func propertiesMatch(a, b map[string]string) bool {
	for _, k := range matchParams {
		av, aok := a[k]
		bv, bok := b[k]
		if aok != bok || av != bv {
			return false
		}
	}
	return true
}

func (r *Registry) Factories() []*ConnectionFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ConnectionFactory, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.factories[key])
	}
	return out
}

// StopAll stops every factory. A panicking factory is logged and does not
// keep the rest from stopping.
func (r *Registry) StopAll() {
	var errs []error
	for _, f := range r.Factories() {
		func() {
			defer func() {
				if p := recover(); p != nil {
					errs = append(errs, fmt.Errorf("stop %s: %v", f.Name(), p))
				}
			}()
			r.logger.Info("stopping connection factory", "name", f.Name())
			f.Stop()
		}()
	}
	if err := errors.Join(errs...); err != nil {
		r.logger.Error("connection factory shutdown incomplete", "error", err)
	}
}
