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
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/listener"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

const sample = `
principal: wso2carbon
connection_factories:
  - name: default
    parameters:
      java.naming.factory.initial: amqp
      java.naming.provider.url: amqp://localhost:5672
      transport.jms.CacheLevel: producer
services:
  - name: echo
    parameters:
      transport.jms.Destination: EchoQueue
      transport.jms.ConcurrentConsumers: "3"
      transport.Transactionality: local
    content_type:
      property: contentType
      default: application/json
    engine:
      action: echo
  - name: relay
    parameters:
      transport.jms.Destination: In
      transport.jms.DestinationType: topic
    engine:
      action: forward
      target: jms:/Out?destType=queue
  - name: broken
    parameters:
      transport.jms.DestinationType: mailbox
supervisor:
  initial_delay: 2s
  max_delay: 1m
faults:
  store: bolt
  path: /var/lib/jms-bridge/faults.db
  max_per_service: 50
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Principal != "wso2carbon" {
		t.Fatalf("expected principal wso2carbon, got %q", cfg.Principal)
	}
	if cfg.Admin.Addr != DefaultAdminAddr {
		t.Fatalf("expected default admin addr, got %q", cfg.Admin.Addr)
	}

	factories, errs := cfg.FactoryConfigs()
	if len(errs) != 0 || len(factories) != 1 {
		t.Fatalf("expected 1 factory and no errors, got %d and %v", len(factories), errs)
	}
	if factories[0].CacheLevel != core.CacheProducer {
		t.Fatalf("expected producer cache level, got %s", factories[0].CacheLevel)
	}

	bindings, failed := cfg.Bindings()
	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bindings))
	}
	if _, ok := failed["broken"]; !ok || len(failed) != 1 {
		t.Fatalf("expected only broken to fail, got %v", failed)
	}
	if !core.IsConfig(failed["broken"]) {
		t.Fatalf("expected a config error, got %v", failed["broken"])
	}

	echo := bindings[0]
	if echo.Concurrency != 3 || echo.Transactionality != routing.TxLocal || !echo.SessionTransacted {
		t.Fatalf("echo binding not applied: %+v", echo)
	}
	if echo.ContentTypeProperty != "contentType" {
		t.Fatalf("expected contentType property, got %q", echo.ContentTypeProperty)
	}
	relay := bindings[1]
	if relay.Destination.Type != core.DestinationTopic || relay.Route.Target != "jms:/Out?destType=queue" {
		t.Fatalf("relay binding not applied: %+v", relay)
	}
}

func TestSupervisorAndFaultDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	sup := cfg.ListenerSupervisor()
	def := listener.DefaultSupervisorConfig()
	if sup.InitialDelay != 2*time.Second || sup.MaxDelay != time.Minute {
		t.Fatalf("supervisor overrides not applied: %+v", sup)
	}
	if sup.Factor != def.Factor || sup.ConfirmAttempts != def.ConfirmAttempts {
		t.Fatalf("supervisor defaults not kept: %+v", sup)
	}

	fs := cfg.FaultStore()
	if fs.Store != "bolt" || fs.MaxPerService != 50 || fs.BodyLimit == 0 || fs.TTL == 0 {
		t.Fatalf("fault store config not applied: %+v", fs)
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte(`
connection_factories:
  - name: default
  - name: default
services:
  - name: a
  - name: a
  - parameters: {}
`))
	if err == nil {
		t.Fatal("expected error for duplicate names")
	}
	if !core.IsConfig(err) {
		t.Fatalf("expected a config error, got %v", err)
	}
}

func TestUnknownActionFailsOnlyThatService(t *testing.T) {
	cfg, err := Parse([]byte(`
services:
  - name: a
    engine: {action: teleport}
  - name: b
    engine: {action: forward, target: "http://x"}
  - name: c
`))
	if err != nil {
		t.Fatal(err)
	}
	bindings, failed := cfg.Bindings()
	if len(bindings) != 1 || bindings[0].Service != "c" {
		t.Fatalf("expected only c to bind, got %d bindings", len(bindings))
	}
	if len(failed) != 2 {
		t.Fatalf("expected 2 failures, got %v", failed)
	}
}

func TestFactoriesEqual(t *testing.T) {
	a, _ := Parse([]byte(sample))
	b, _ := Parse([]byte(sample))
	if !FactoriesEqual(a, b) {
		t.Fatal("expected equal factories")
	}
	b.ConnectionFactories[0].Parameters["java.naming.provider.url"] = "amqp://other:5672"
	if FactoriesEqual(a, b) {
		t.Fatal("expected factories to differ")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JMS_BRIDGE_CONFIG", "/tmp/bridge.yaml")
	t.Setenv("JMS_BRIDGE_ADMIN_ADDR", "127.0.0.1:9999")
	env := LoadEnv()
	if env.ConfigPath != "/tmp/bridge.yaml" {
		t.Fatalf("expected config path from env, got %q", env.ConfigPath)
	}
	if env.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", env.LogLevel)
	}
	cfg, _ := Parse([]byte(sample))
	env.Apply(cfg)
	if cfg.Admin.Addr != "127.0.0.1:9999" {
		t.Fatalf("expected admin addr override, got %q", cfg.Admin.Addr)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(c *Config) { reloaded <- c }, testLogger())
	w.interval = 20 * time.Millisecond
	w.debounce = 30 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx)
	time.Sleep(50 * time.Millisecond)

	updated := sample + "\nadmin:\n  addr: \":9191\"\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}
	// Make sure polling sees a newer modification time too.
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	select {
	case cfg := <-reloaded:
		if cfg.Admin.Addr != ":9191" {
			t.Fatalf("expected reloaded admin addr, got %q", cfg.Admin.Addr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
