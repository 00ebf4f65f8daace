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

package main

import (
	"fmt"
	"log/slog"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/admin"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/engine"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/faultstore"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/listener"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/metrics"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/sender"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/config"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins"
	amqpprovider "github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/kafka"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/memory"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/mqtt5"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/rabbitmq"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/plugins/solace"
)

// app is one wired bridge instance.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	providers *plugins.Registry
	factories *jms.Registry
	metrics   *metrics.Collector
	faults    faultstore.Store
	hub       *admin.Hub
	engine    *engine.Engine
	transport *sender.Transport
	listener  *listener.Listener
}

func newProviders(logger *slog.Logger) *plugins.Registry {
	reg := plugins.NewRegistry(logger.With("component", "providers"))
	reg.Register("memory", memory.NewBroker().ProviderFunc())
	reg.Register("amqp", amqpprovider.New, "jms", "amqp10")
	reg.Register("rabbitmq", rabbitmq.New, "amqp091")
	reg.Register("kafka", kafka.New)
	reg.Register("mqtt5", mqtt5.New, "mqtt")
	reg.Register("solace", solace.New)
	return reg
}

// newFactories registers every factory that builds. Broken factories are
// logged and skipped so the services that do not use them still start.
func newFactories(cfg *config.Config, providers *plugins.Registry, logger *slog.Logger) *jms.Registry {
	reg := jms.NewRegistry(logger.With("component", "factories"))
	fcs, errs := cfg.FactoryConfigs()
	for _, err := range errs {
		logger.Error("connection factory rejected", "error", err)
	}
	for _, fc := range fcs {
		if err := reg.Register(jms.NewConnectionFactory(fc, providers, logger)); err != nil {
			logger.Error("connection factory rejected", "connection_factory", fc.Name, "error", err)
		}
	}
	return reg
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	faults, err := faultstore.NewStore(cfg.FaultStore(), logger)
	if err != nil {
		return nil, fmt.Errorf("fault store: %w", err)
	}
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		faults:  faults,
		hub:     admin.NewHub(logger.With("component", "events")),
	}
	a.providers = newProviders(logger)
	a.factories = newFactories(cfg, a.providers, logger)

	tracer := logging.NewTracer(logger.With("component", "trace"))
	routes := routing.NewTable()
	a.engine = engine.New(routes, nil, logger)
	a.transport = sender.NewTransport(sender.TransportOptions{
		Factories: a.factories,
		Providers: a.providers,
		Engine:    a.engine,
		Metrics:   a.metrics,
		Tracer:    tracer,
		Logger:    logger,
	})
	a.engine.SetForwarder(a.transport)

	a.listener = listener.New(listener.Options{
		Factories:  a.factories,
		Routes:     routes,
		Engine:     a.engine,
		Metrics:    a.metrics,
		Faults:     faults,
		Replier:    a.transport,
		Supervisor: listener.NewSupervisor(cfg.ListenerSupervisor(), logger),
		Observer:   a.hub,
		Tracer:     tracer,
		Principal:  cfg.Principal,
		BodyLimit:  cfg.FaultStore().BodyLimit,
		Logger:     logger,
	})
	return a, nil
}

// deploy reconciles the running services with cfg. Services whose
// definition is invalid are shown as faulty instead of aborting the rest.
func (a *app) deploy(cfg *config.Config) {
	bindings, failed := cfg.Bindings()
	if err := a.listener.Reconcile(bindings); err != nil {
		a.logger.Warn("some services failed to deploy", "error", err)
	}
	for service, err := range failed {
		a.logger.Error("service rejected", "service", service, "error", err)
		a.listener.Reject(service, err)
	}
}

// reload is the config watcher callback.
func (a *app) reload(next *config.Config) {
	if !config.FactoriesEqual(a.cfg, next) {
		a.logger.Warn("connection factory changes take effect on restart")
	}
	a.deploy(next)
	a.cfg = next
}

func (a *app) server() *admin.Server {
	return admin.New(a.cfg.Admin.Addr, a.listener, a.metrics, a.faults, a.hub, a.logger)
}

func (a *app) close() error {
	a.listener.Stop()
	a.factories.StopAll()
	return a.faults.Close()
}
