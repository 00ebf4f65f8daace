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

// Package listener consumes from the destinations bound to services and
// feeds the messages to the engine.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/faultstore"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/metrics"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/routing"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/codec"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// Observer is told about every service state change. It is called with the
// service's task manager locked and must not call back into the listener.
type Observer interface {
	ServiceStateChanged(service string, state State)
}

type Options struct {
	Factories    *jms.Registry
	Routes       *routing.Table
	Engine       core.Engine
	Codec        codec.Codec
	Metrics      *metrics.Collector
	Faults       faultstore.Store
	Replier      Replier
	Transactions core.TransactionManager
	Supervisor   *Supervisor
	Observer     Observer
	Tracer       *logging.Tracer
	// Principal is the identity services run under.
	Principal string
	BodyLimit int
	Logger    *slog.Logger
}

type deployment struct {
	binding *routing.Binding
	manager *TaskManager
	cancel  context.CancelFunc
	done    chan struct{}
}

// ServiceStatus is the externally visible state of one service.
type ServiceStatus struct {
	Service         string `json:"service"`
	State           State  `json:"state"`
	Destination     string `json:"destination"`
	DestinationType string `json:"destination_type"`
	Factory         string `json:"connection_factory"`
	Tasks           int    `json:"tasks"`
	Attached        int    `json:"attached"`
	Fault           string `json:"fault,omitempty"`
}

type Listener struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	services map[string]*deployment
	faulty   map[string]faultyService
	paused   bool
	stopped  bool
}

type faultyService struct {
	binding *routing.Binding
	err     error
}

func New(opts Options) *Listener {
	if opts.Routes == nil {
		opts.Routes = routing.NewTable()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Supervisor == nil {
		opts.Supervisor = NewSupervisor(DefaultSupervisorConfig(), opts.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if opts.Principal != "" {
		ctx = core.WithPrincipal(ctx, opts.Principal)
	}
	return &Listener{
		opts:     opts,
		logger:   opts.Logger.With("component", "listener"),
		ctx:      ctx,
		cancel:   cancel,
		services: make(map[string]*deployment),
		faulty:   make(map[string]faultyService),
	}
}

func (l *Listener) Routes() *routing.Table {
	return l.opts.Routes
}

// Deploy starts consuming for b. The broker wait happens in the background;
// configuration problems are returned and mark the service faulty.
func (l *Listener) Deploy(b *routing.Binding) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return fmt.Errorf("deploy %s: %w", b.Service, core.ErrClosed)
	}
	if _, ok := l.services[b.Service]; ok {
		return fmt.Errorf("deploy %s: already deployed", b.Service)
	}
	return l.deployLocked(b)
}

func (l *Listener) deployLocked(b *routing.Binding) error {
	f, err := l.prepare(b)
	if err != nil {
		l.markFaultyLocked(b, err)
		return err
	}
	delete(l.faulty, b.Service)
	for _, w := range b.Warnings {
		l.logger.Warn("service parameter adjusted", "service", b.Service, "warning", w)
	}

	logger := l.opts.Logger.With("component", "listener")
	r := NewReceiver(b, f, ReceiverOptions{
		Engine:    l.opts.Engine,
		Codec:     l.opts.Codec,
		Metrics:   l.opts.Metrics,
		Faults:    l.opts.Faults,
		Replier:   l.opts.Replier,
		Tracer:    l.opts.Tracer,
		BodyLimit: l.opts.BodyLimit,
		Logger:    logger,
	})
	m := NewTaskManager(b, f, r, l.opts.Transactions, logger)
	if obs := l.opts.Observer; obs != nil {
		service := b.Service
		m.OnStateChange(func(s State) { obs.ServiceStateChanged(service, s) })
	}

	ctx, cancel := context.WithCancel(core.WithService(l.ctx, b.Service))
	d := &deployment{binding: b, manager: m, cancel: cancel, done: make(chan struct{})}
	l.services[b.Service] = d
	l.opts.Routes.Add(b)

	go l.start(ctx, d, f)
	l.logger.Info("service deployed",
		"service", b.Service,
		"destination", b.Destination.Name,
		"destination_type", b.Destination.Type.String(),
		"connection_factory", f.Name(),
		"concurrency", b.Concurrency,
	)
	return nil
}

func (l *Listener) prepare(b *routing.Binding) (*jms.ConnectionFactory, error) {
	if l.opts.Engine == nil {
		return nil, &core.ConfigError{Scope: b.Service, Param: "engine", Err: core.ErrUnsupported}
	}
	f, ok := l.opts.Factories.Lookup(b.Factory)
	if !ok {
		return nil, &core.ConfigError{Scope: b.Service, Param: jms.ParamConnectionFactory,
			Err: fmt.Errorf("%q: %w", b.Factory, core.ErrFactoryNotFound)}
	}
	if b.Transactionality == routing.TxJTA && l.opts.Transactions == nil {
		return nil, &core.ConfigError{Scope: b.Service, Param: jms.ParamTransactionality,
			Err: errors.New("jta requested but no transaction manager is configured")}
	}
	if _, err := f.Destination(b.Destination.Name, b.Destination.Type); err != nil {
		if core.IsConfig(err) {
			return nil, err
		}
		return nil, &core.ConfigError{Scope: b.Service, Param: jms.ParamDestination, Err: err}
	}
	return f, nil
}

func (l *Listener) start(ctx context.Context, d *deployment, f *jms.ConnectionFactory) {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("service start panic recovered", "service", d.binding.Service, "error", r)
		}
	}()

	if err := l.opts.Supervisor.AwaitBroker(ctx, f.Name(), f.Probe); err != nil {
		if ctx.Err() == nil {
			l.mu.Lock()
			if l.services[d.binding.Service] == d {
				delete(l.services, d.binding.Service)
				l.markFaultyLocked(d.binding, err)
			}
			l.mu.Unlock()
		}
		return
	}

	l.mu.Lock()
	if l.services[d.binding.Service] != d {
		l.mu.Unlock()
		return
	}
	if err := d.manager.Start(ctx); err != nil {
		l.mu.Unlock()
		l.logger.Error("service start failed", "service", d.binding.Service, "error", err)
		return
	}
	if l.paused {
		d.manager.Pause()
	}
	l.mu.Unlock()

	l.opts.Supervisor.ConfirmStarted(ctx, d.binding.Service, d.manager.Ready)
}

func (l *Listener) markFaultyLocked(b *routing.Binding, err error) {
	if _, seen := l.faulty[b.Service]; !seen {
		l.logger.Warn("service marked faulty",
			"service", b.Service,
			"destination", b.Destination.Name,
			"destination_type", b.Destination.Type.String(),
			"error", err,
		)
	}
	l.faulty[b.Service] = faultyService{binding: b, err: err}
	l.opts.Routes.Remove(b.Service)
}

// Reject records a service whose descriptor could not be turned into a
// binding, so it shows up as faulty.
func (l *Listener) Reject(service string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.services[service]; ok {
		return
	}
	l.markFaultyLocked(&routing.Binding{Service: service}, err)
}

// Undeploy stops the service's tasks and forgets it.
func (l *Listener) Undeploy(service string) error {
	l.mu.Lock()
	d, ok := l.services[service]
	delete(l.services, service)
	_, wasFaulty := l.faulty[service]
	delete(l.faulty, service)
	l.mu.Unlock()

	if !ok {
		if wasFaulty {
			return nil
		}
		return fmt.Errorf("undeploy %s: %w", service, core.ErrServiceNotFound)
	}
	l.stopDeployment(d)
	l.opts.Routes.Remove(service)
	l.logger.Info("service undeployed", "service", service)
	return nil
}

func (l *Listener) stopDeployment(d *deployment) {
	d.cancel()
	<-d.done
	d.manager.Stop()
}

// Reconcile brings the deployed services in line with bindings: new ones are
// deployed, missing ones undeployed and changed ones redeployed.
func (l *Listener) Reconcile(bindings []*routing.Binding) error {
	want := make(map[string]*routing.Binding, len(bindings))
	for _, b := range bindings {
		want[b.Service] = b
	}

	l.mu.Lock()
	var stale []string
	for name, d := range l.services {
		if nb, ok := want[name]; !ok || !nb.Equal(d.binding) {
			stale = append(stale, name)
		}
	}
	for name := range l.faulty {
		if _, ok := want[name]; !ok {
			delete(l.faulty, name)
		}
	}
	l.mu.Unlock()

	for _, name := range stale {
		if err := l.Undeploy(name); err != nil {
			l.logger.Warn("undeploy during reload failed", "service", name, "error", err)
		}
	}

	var errs []error
	for _, b := range bindings {
		l.mu.Lock()
		_, running := l.services[b.Service]
		fs, faulty := l.faulty[b.Service]
		if running || (faulty && fs.binding.Equal(b)) {
			l.mu.Unlock()
			continue
		}
		err := l.deployLocked(b)
		l.mu.Unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *Listener) managers() []*TaskManager {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*TaskManager, 0, len(l.services))
	for _, d := range l.services {
		out = append(out, d.manager)
	}
	return out
}

// Pause stops every service from pulling new messages.
func (l *Listener) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
	for _, m := range l.managers() {
		m.Pause()
	}
	l.logger.Info("listener paused")
}

func (l *Listener) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
	for _, m := range l.managers() {
		m.Resume()
	}
	l.logger.Info("listener resumed")
}

func (l *Listener) manager(service string) (*TaskManager, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.services[service]
	if !ok {
		return nil, fmt.Errorf("%s: %w", service, core.ErrServiceNotFound)
	}
	return d.manager, nil
}

func (l *Listener) PauseService(service string) error {
	m, err := l.manager(service)
	if err != nil {
		return err
	}
	m.Pause()
	return nil
}

func (l *Listener) ResumeService(service string) error {
	m, err := l.manager(service)
	if err != nil {
		return err
	}
	m.Resume()
	return nil
}

// MaintenanceShutdown pauses every service, gives in-flight messages up to
// grace to finish, then stops the listener.
func (l *Listener) MaintenanceShutdown(ctx context.Context, grace time.Duration) error {
	l.logger.Info("maintenance shutdown requested", "grace", grace)
	l.Pause()

	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	var err error
	for _, m := range l.managers() {
		if werr := m.WaitIdle(wctx); werr != nil {
			err = fmt.Errorf("in-flight messages still running after %s: %w", grace, werr)
			break
		}
	}
	if err != nil {
		l.logger.Warn("maintenance shutdown grace expired", "error", err)
	}
	l.Stop()
	return nil
}

// ClearActiveConnections is accepted for management compatibility and does
// nothing.
func (l *Listener) ClearActiveConnections() error {
	l.logger.Info("clearActiveConnections is not implemented")
	return nil
}

// Stop undeploys every service. It is safe to call more than once.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	deployments := make([]*deployment, 0, len(l.services))
	for name, d := range l.services {
		deployments = append(deployments, d)
		l.opts.Routes.Remove(name)
	}
	l.services = make(map[string]*deployment)
	l.mu.Unlock()

	l.cancel()
	var wg sync.WaitGroup
	for _, d := range deployments {
		wg.Add(1)
		go func(d *deployment) {
			defer wg.Done()
			l.stopDeployment(d)
		}(d)
	}
	wg.Wait()
	l.logger.Info("listener stopped", "services", len(deployments))
}

// Status lists deployed and faulty services by name.
func (l *Listener) Status() []ServiceStatus {
	l.mu.Lock()
	var out []ServiceStatus
	for _, d := range l.services {
		out = append(out, ServiceStatus{
			Service:         d.binding.Service,
			State:           d.manager.State(),
			Destination:     d.binding.Destination.Name,
			DestinationType: d.binding.Destination.Type.String(),
			Factory:         d.binding.Factory,
			Tasks:           d.binding.Concurrency,
			Attached:        d.manager.Attached(),
		})
	}
	for _, fs := range l.faulty {
		out = append(out, ServiceStatus{
			Service:         fs.binding.Service,
			State:           StateStopped,
			Destination:     fs.binding.Destination.Name,
			DestinationType: fs.binding.Destination.Type.String(),
			Factory:         fs.binding.Factory,
			Fault:           fs.err.Error(),
		})
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// State returns the state of one deployed service.
func (l *Listener) State(service string) (State, error) {
	m, err := l.manager(service)
	if err != nil {
		return StateStopped, err
	}
	return m.State(), nil
}

// EndpointURL is the address the service can be reached at, without any
// credentials.
func (l *Listener) EndpointURL(service string) (string, error) {
	b, ok := l.opts.Routes.Lookup(service)
	if !ok {
		return "", fmt.Errorf("%s: %w", service, core.ErrServiceNotFound)
	}
	f, ok := l.opts.Factories.Lookup(b.Factory)
	if !ok {
		return "", fmt.Errorf("%s: %w", b.Factory, core.ErrFactoryNotFound)
	}
	return jms.BuildEndpointURL(b.Destination, b.ReplyDestination, b.ContentTypeProperty, f.Config().Properties), nil
}

// EndpointURLs returns the address of every deployed service in service
// name order.
func (l *Listener) EndpointURLs() []ServiceEndpoint {
	var out []ServiceEndpoint
	for _, b := range l.opts.Routes.All() {
		f, ok := l.opts.Factories.Lookup(b.Factory)
		if !ok {
			continue
		}
		out = append(out, ServiceEndpoint{
			Service: b.Service,
			URL:     jms.BuildEndpointURL(b.Destination, b.ReplyDestination, b.ContentTypeProperty, f.Config().Properties),
		})
	}
	return out
}

type ServiceEndpoint struct {
	Service string `json:"service"`
	URL     string `json:"url"`
}
