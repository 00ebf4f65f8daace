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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/naming"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

type ProviderResolver interface {
	Provider(name, url string, env map[string]string) (core.Provider, error)
}

// ConnectionFactory owns the connection, session and producers it hands out
// at or below its cache level. Cached resources are created under mu.
type ConnectionFactory struct {
	cfg       FactoryConfig
	providers ProviderResolver
	logger    *slog.Logger

	mu           sync.Mutex
	dir          *naming.Directory
	provider     core.Provider
	kind         core.ConnectionKind
	conn         core.Connection
	session      *SessionHandle
	sessionConn  core.Connection
	producers    map[string]core.Producer
	destinations map[string]core.Destination
}

func NewConnectionFactory(cfg FactoryConfig, providers ProviderResolver, logger *slog.Logger) *ConnectionFactory {
	return &ConnectionFactory{
		cfg:          cfg,
		providers:    providers,
		logger:       logger.With("connection_factory", cfg.Name),
		producers:    make(map[string]core.Producer),
		destinations: make(map[string]core.Destination),
	}
}

func (f *ConnectionFactory) Name() string { return f.cfg.Name }

func (f *ConnectionFactory) Config() FactoryConfig { return f.cfg }

func (f *ConnectionFactory) CacheLevel() core.CacheLevel { return f.cfg.CacheLevel }

// Kind is the connection kind used for sends: generic on 1.1 providers,
// otherwise the configured or JNDI-derived queue/topic split.
func (f *ConnectionFactory) Kind() core.ConnectionKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.resolveLocked(); err != nil {
		return f.cfg.Kind
	}
	return f.kind
}

func (f *ConnectionFactory) resolveLocked() error {
	if f.provider != nil {
		return nil
	}
	dir, err := naming.New(f.cfg.Properties)
	if err != nil {
		return &core.ConfigError{Scope: f.cfg.Name, Param: ParamInitialContextFactory, Err: err}
	}
	ref, err := dir.LookupConnectionFactory(f.cfg.JNDIName)
	if err != nil {
		return &core.ConfigError{Scope: f.cfg.Name, Param: ParamConnectionFactoryJNDI, Err: err}
	}
	p, err := f.providers.Provider(f.cfg.Properties[ParamInitialContextFactory], ref.URL, dir.Environment())
	if err != nil {
		return &core.ConfigError{Scope: f.cfg.Name, Param: ParamInitialContextFactory, Err: err}
	}
	f.dir = dir
	f.provider = p
	f.kind = core.ConnectionGeneric
	if !f.cfg.JMSSpec11 {
		f.kind = f.cfg.Kind
		if f.kind == core.ConnectionGeneric {
			f.kind = ref.Kind
		}
	}
	return nil
}

func (f *ConnectionFactory) connectLocked(ctx context.Context, clientID string) (core.Connection, error) {
	if err := f.resolveLocked(); err != nil {
		return nil, err
	}
	if clientID == "" {
		clientID = f.cfg.ClientID
	}
	conn, err := f.provider.Connect(ctx, core.ConnectOptions{
		Username: f.cfg.Username,
		Password: f.cfg.Password,
		ClientID: clientID,
		Kind:     f.kind,
	})
	if err != nil {
		return nil, &core.TransientBrokerError{Factory: f.cfg.Name, Op: "connect", Err: err}
	}
	return conn, nil
}

func alive(c core.Connection) bool {
	select {
	case <-c.Done():
		return false
	default:
		return true
	}
}

// Connection returns the cached connection when the cache level allows it and
// the connection is still alive, otherwise a new one.
func (f *ConnectionFactory) Connection(ctx context.Context) (core.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		if alive(f.conn) {
			return f.conn, nil
		}
		f.logger.Warn("cached connection lost, reconnecting")
		f.teardownLocked()
	}
	conn, err := f.connectLocked(ctx, "")
	if err != nil {
		return nil, err
	}
	if f.cfg.CacheLevel >= core.CacheConnection {
		f.conn = conn
	}
	return conn, nil
}

// CreateConnection always opens a connection the caller owns.
func (f *ConnectionFactory) CreateConnection(ctx context.Context, clientID string) (core.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectLocked(ctx, clientID)
}

func (f *ConnectionFactory) Session(ctx context.Context, conn core.Connection) (*SessionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil && f.sessionConn == conn && alive(conn) {
		return f.session, nil
	}
	s, err := conn.Session(ctx, core.SessionOptions{Transacted: f.cfg.SessionTransacted, AckMode: f.cfg.AckMode})
	if err != nil {
		return nil, &core.TransientBrokerError{Factory: f.cfg.Name, Op: "session", Err: err}
	}
	h := NewSessionHandle(s)
	if f.cfg.CacheLevel >= core.CacheSession && conn == f.conn {
		f.closeProducersLocked()
		if f.session != nil {
			f.logCleanup("session", f.session.Close())
		}
		f.session = h
		f.sessionConn = conn
	}
	return h, nil
}

func (f *ConnectionFactory) CreateSession(ctx context.Context, conn core.Connection, opts core.SessionOptions) (*SessionHandle, error) {
	s, err := conn.Session(ctx, opts)
	if err != nil {
		return nil, &core.TransientBrokerError{Factory: f.cfg.Name, Op: "session", Err: err}
	}
	return NewSessionHandle(s), nil
}

// Producer must not be called while h is held by the caller.
func (f *ConnectionFactory) Producer(ctx context.Context, h *SessionHandle, dest core.Destination) (core.Producer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cache := f.cfg.CacheLevel >= core.CacheProducer && h == f.session
	if cache {
		if p, ok := f.producers[dest.Key()]; ok {
			return p, nil
		}
	}
	var p core.Producer
	err := h.Do(func(s core.Session) error {
		var err error
		p, err = s.Producer(ctx, dest)
		return err
	})
	if err != nil {
		return nil, &core.TransientBrokerError{Factory: f.cfg.Name, Op: "producer", Err: err}
	}
	if cache {
		f.producers[dest.Key()] = p
	}
	return p, nil
}

// Destination resolves name through the directory. A name that is not bound
// is retried as a dynamic name and then through a context that maps the name
// to itself; both fallbacks are logged.
func (f *ConnectionFactory) Destination(name string, t core.DestinationType) (core.Destination, error) {
	key := t.String() + "://" + name
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.destinations[key]; ok {
		return d, nil
	}
	if err := f.resolveLocked(); err != nil {
		return core.Destination{}, err
	}

	dest, err := f.dir.LookupDestination(name)
	if errors.Is(err, core.ErrNameNotFound) {
		prefix := naming.DynamicQueuesPrefix
		if t == core.DestinationTopic {
			prefix = naming.DynamicTopicsPrefix
		}
		dest, err = f.dir.LookupDestination(prefix + name)
		if err == nil {
			f.logger.Warn("destination not bound, using dynamic name", "destination", name, "destination_type", t.String())
		} else {
			var id *naming.Directory
			if id, err = f.dir.IdentityContext(name, t); err == nil {
				dest, err = id.LookupDestination(name)
			}
			if err == nil {
				f.logger.Warn("destination not bound, using physical name", "destination", name, "destination_type", t.String())
			}
		}
	}
	if err != nil {
		return core.Destination{}, fmt.Errorf("resolve destination %q: %w", name, err)
	}
	if dest.Type == core.DestinationGeneric && t != core.DestinationGeneric {
		dest.Type = t
	}
	f.destinations[key] = dest
	return dest, nil
}

func (f *ConnectionFactory) ReplyDestination() (core.Destination, bool) {
	if f.cfg.ReplyDestinationName == "" {
		return core.Destination{}, false
	}
	d, err := f.Destination(f.cfg.ReplyDestinationName, f.cfg.ReplyDestinationType)
	if err != nil {
		f.logger.Warn("reply destination unresolved", "destination", f.cfg.ReplyDestinationName, "error", err)
		return core.Destination{}, false
	}
	return d, true
}

// OwnsConnection reports whether c is the factory's cached connection.
func (f *ConnectionFactory) OwnsConnection(c core.Connection) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return c != nil && c == f.conn
}

func (f *ConnectionFactory) OwnsSession(h *SessionHandle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return h != nil && h == f.session
}

func (f *ConnectionFactory) OwnsProducer(p core.Producer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p == nil {
		return false
	}
	cached, ok := f.producers[p.Destination().Key()]
	return ok && cached == p
}

// Probe opens and discards a connection.
func (f *ConnectionFactory) Probe(ctx context.Context) error {
	f.mu.Lock()
	conn, err := f.connectLocked(ctx, "")
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.logCleanup("probe connection", conn.Close())
	return nil
}

// Stop releases cached resources producer first, then session, then
// connection. Close failures are logged.
func (f *ConnectionFactory) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teardownLocked()
}

func (f *ConnectionFactory) teardownLocked() {
	f.closeProducersLocked()
	if f.session != nil {
		f.logCleanup("session", f.session.Close())
		f.session = nil
		f.sessionConn = nil
	}
	if f.conn != nil {
		f.logCleanup("connection", f.conn.Close())
		f.conn = nil
	}
}

func (f *ConnectionFactory) closeProducersLocked() {
	var errs []error
	for key, p := range f.producers {
		if err := p.Close(); err != nil {
			errs = append(errs, &core.ResourceCleanupError{Resource: "producer " + key, Err: err})
		}
		delete(f.producers, key)
	}
	if err := errors.Join(errs...); err != nil {
		f.logger.Warn("producer cleanup failed", "error", err)
	}
}

func (f *ConnectionFactory) logCleanup(resource string, err error) {
	if err == nil {
		return
	}
	f.logger.Warn("resource cleanup failed", "error", &core.ResourceCleanupError{Resource: resource, Err: err})
}
