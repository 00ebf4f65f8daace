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

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/contenttype"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/engine"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/faultstore"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/listener"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

type Config struct {
	ConnectionFactories []FactoryConfig  `yaml:"connection_factories"`
	Services            []ServiceConfig  `yaml:"services"`
	Supervisor          SupervisorConfig `yaml:"supervisor"`
	Faults              FaultsConfig     `yaml:"faults"`
	Admin               AdminConfig      `yaml:"admin"`
	// Principal is the identity services run under.
	Principal string `yaml:"principal"`
}

type FactoryConfig struct {
	Name       string            `yaml:"name"`
	Parameters map[string]string `yaml:"parameters"`
}

type ServiceConfig struct {
	Name        string             `yaml:"name"`
	Parameters  map[string]string  `yaml:"parameters"`
	ContentType contenttype.Config `yaml:"content_type"`
	Engine      EngineConfig       `yaml:"engine"`
}

type EngineConfig struct {
	Action string `yaml:"action"`
	Target string `yaml:"target"`
}

type SupervisorConfig struct {
	InitialDelay    time.Duration `yaml:"initial_delay"`
	Factor          float64       `yaml:"factor"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	ConfirmAttempts int           `yaml:"confirm_attempts"`
	ConfirmInterval time.Duration `yaml:"confirm_interval"`
}

type FaultsConfig struct {
	Store         string        `yaml:"store"`
	Path          string        `yaml:"path"`
	RedisAddr     string        `yaml:"redis_addr"`
	MaxPerService int           `yaml:"max_per_service"`
	TTL           time.Duration `yaml:"ttl"`
	BodyLimit     int           `yaml:"body_limit"`
}

type AdminConfig struct {
	Addr string `yaml:"addr"`
}

const DefaultAdminAddr = ":9090"

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = DefaultAdminAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks what must hold for the whole descriptor. Problems local to
// one service are left to Bindings so the rest can still run.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, f := range c.ConnectionFactories {
		if f.Name == "" {
			errs = append(errs, &core.ConfigError{Scope: fmt.Sprintf("connection_factories[%d]", i), Param: "name", Err: core.ErrNameNotFound})
			continue
		}
		if seen[f.Name] {
			errs = append(errs, &core.ConfigError{Scope: f.Name, Param: "name", Err: errors.New("duplicate connection factory")})
		}
		seen[f.Name] = true
	}
	services := make(map[string]bool)
	for i, s := range c.Services {
		if s.Name == "" {
			errs = append(errs, &core.ConfigError{Scope: fmt.Sprintf("services[%d]", i), Param: "name", Err: core.ErrServiceNotFound})
			continue
		}
		if services[s.Name] {
			errs = append(errs, &core.ConfigError{Scope: s.Name, Param: "name", Err: errors.New("duplicate service")})
		}
		services[s.Name] = true
	}
	return errors.Join(errs...)
}

// FactoryConfigs builds the connection factory configurations. A factory
// that fails is reported and left out.
func (c *Config) FactoryConfigs() ([]jms.FactoryConfig, []error) {
	var out []jms.FactoryConfig
	var errs []error
	for _, f := range c.ConnectionFactories {
		fc, err := jms.NewFactoryConfig(f.Name, f.Parameters)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, fc)
	}
	return out, errs
}

// Bindings builds one binding per service. Services that fail are returned
// by name with their error.
func (c *Config) Bindings() ([]*routing.Binding, map[string]error) {
	var out []*routing.Binding
	failed := make(map[string]error)
	for _, s := range c.Services {
		if !engine.ValidAction(s.Engine.Action) {
			failed[s.Name] = &core.ConfigError{Scope: s.Name, Param: "engine.action", Err: fmt.Errorf("unknown action %q", s.Engine.Action)}
			continue
		}
		if s.Engine.Target != "" {
			if _, err := jms.ParseURL(s.Engine.Target); err != nil {
				failed[s.Name] = &core.ConfigError{Scope: s.Name, Param: "engine.target", Err: err}
				continue
			}
		}
		b, err := routing.NewBinding(s.Name, s.Parameters, s.ContentType, routing.Route{Action: s.Engine.Action, Target: s.Engine.Target})
		if err != nil {
			failed[s.Name] = err
			continue
		}
		out = append(out, b)
	}
	return out, failed
}

// ListenerSupervisor fills unset fields with the listener defaults.
func (c *Config) ListenerSupervisor() listener.SupervisorConfig {
	out := listener.DefaultSupervisorConfig()
	s := c.Supervisor
	if s.InitialDelay > 0 {
		out.InitialDelay = s.InitialDelay
	}
	if s.Factor > 1 {
		out.Factor = s.Factor
	}
	if s.MaxDelay > 0 {
		out.MaxDelay = s.MaxDelay
	}
	if s.ConfirmAttempts > 0 {
		out.ConfirmAttempts = s.ConfirmAttempts
	}
	if s.ConfirmInterval > 0 {
		out.ConfirmInterval = s.ConfirmInterval
	}
	return out
}

func (c *Config) FaultStore() faultstore.Config {
	out := faultstore.DefaultConfig()
	f := c.Faults
	if f.Store != "" {
		out.Store = f.Store
	}
	out.Path = f.Path
	out.RedisAddr = f.RedisAddr
	if f.MaxPerService > 0 {
		out.MaxPerService = f.MaxPerService
	}
	if f.TTL > 0 {
		out.TTL = f.TTL
	}
	if f.BodyLimit > 0 {
		out.BodyLimit = f.BodyLimit
	}
	return out
}

// FactoriesEqual reports whether two descriptors declare the same connection
// factories. Factory changes only take effect on restart.
func FactoriesEqual(a, b *Config) bool {
	if len(a.ConnectionFactories) != len(b.ConnectionFactories) {
		return false
	}
	for i := range a.ConnectionFactories {
		fa, fb := a.ConnectionFactories[i], b.ConnectionFactories[i]
		if fa.Name != fb.Name || len(fa.Parameters) != len(fb.Parameters) {
			return false
		}
		for k, v := range fa.Parameters {
			if ov, ok := fb.Parameters[k]; !ok || ov != v {
				return false
			}
		}
	}
	return true
}
