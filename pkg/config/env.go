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

import "github.com/joeshaw/envdecode"

// Env holds the settings read from the process environment.
type Env struct {
	// ConfigPath is the descriptor location. ENV: JMS_BRIDGE_CONFIG
	ConfigPath string `env:"JMS_BRIDGE_CONFIG,default=/etc/jms-bridge/config.yaml"`
	// LogLevel is one of debug, info, warn or error. ENV: JMS_BRIDGE_LOG_LEVEL
	LogLevel string `env:"JMS_BRIDGE_LOG_LEVEL,default=info"`
	// AdminAddr overrides admin.addr from the descriptor. ENV: JMS_BRIDGE_ADMIN_ADDR
	AdminAddr string `env:"JMS_BRIDGE_ADMIN_ADDR"`
}

func LoadEnv() Env {
	var env Env
	// Decode reports an error when no variable is set; the tag defaults
	// still apply in that case.
	_ = envdecode.Decode(&env)
	if env.ConfigPath == "" {
		env.ConfigPath = "/etc/jms-bridge/config.yaml"
	}
	if env.LogLevel == "" {
		env.LogLevel = "info"
	}
	return env
}

// Apply lets environment settings override the descriptor.
func (e Env) Apply(cfg *Config) {
	if e.AdminAddr != "" {
		cfg.Admin.Addr = e.AdminAddr
	}
}
