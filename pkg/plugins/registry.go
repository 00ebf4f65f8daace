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

package plugins

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// ProviderFunc builds a provider for one connection factory. url is the
// resolved provider URL and env the factory's full property set.
type ProviderFunc func(url string, env map[string]string, logger *slog.Logger) (core.Provider, error)

type Registry struct {
	providers map[string]ProviderFunc
	logger    *slog.Logger
	mu        sync.RWMutex
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		providers: make(map[string]ProviderFunc),
		logger:    logger,
	}
}

func (r *Registry) Register(name string, fn ProviderFunc, aliases ...string) {
	r.mu.Lock()
	for _, n := range append([]string{name}, aliases...) {
		r.providers[strings.ToLower(n)] = fn
	}
	r.mu.Unlock()
	r.logger.Info("registered provider", "name", name, "aliases", aliases)
}

// Provider instantiates the provider selected by the initial context factory
// name.
func (r *Registry) Provider(name, url string, env map[string]string) (core.Provider, error) {
	r.mu.RLock()
	fn, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, core.ErrNameNotFound)
	}
	p, err := fn(url, env, r.logger.With("provider", name))
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", name, err)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
