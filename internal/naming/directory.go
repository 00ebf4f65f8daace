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

// Package naming is a JNDI-style directory built from a flat property set.
//
// Recognised bindings:
//
//	connectionfactory.<name>=<provider url>
//	queue.<name>=<physical queue>
//	topic.<name>=<physical topic>
//
// Names under dynamicQueues/ and dynamicTopics/ resolve to a destination of
// the same physical name unless naming.dynamicDestinations is false.
package naming

import (
	"fmt"
	"strings"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const (
	InitialContextFactory = "java.naming.factory.initial"
	ProviderURL           = "java.naming.provider.url"
	SecurityPrincipal     = "java.naming.security.principal"
	SecurityCredentials   = "java.naming.security.credentials"

	ConnectionFactoryPrefix = "connectionfactory."
	QueuePrefix             = "queue."
	TopicPrefix             = "topic."
	DynamicQueuesPrefix     = "dynamicQueues/"
	DynamicTopicsPrefix     = "dynamicTopics/"

	DynamicDestinations = "naming.dynamicDestinations"
)

// Names every directory binds to the provider URL without configuration.
var defaultFactoryNames = []string{"ConnectionFactory", "QueueConnectionFactory", "TopicConnectionFactory"}

type FactoryRef struct {
	Name string
	URL  string
	Kind core.ConnectionKind
}

type Directory struct {
	env          map[string]string
	destinations map[string]core.Destination
	factories    map[string]FactoryRef
	dynamic      bool
}

// New builds a directory. It fails when no initial context factory is set,
// the same way a naming context cannot be created without one.
func New(env map[string]string) (*Directory, error) {
	if strings.TrimSpace(env[InitialContextFactory]) == "" {
		return nil, fmt.Errorf("%s not set: %w", InitialContextFactory, core.ErrNameNotFound)
	}
	d := &Directory{
		env:          make(map[string]string, len(env)),
		destinations: make(map[string]core.Destination),
		factories:    make(map[string]FactoryRef),
		dynamic:      !strings.EqualFold(strings.TrimSpace(env[DynamicDestinations]), "false"),
	}
	url := env[ProviderURL]
	for _, n := range defaultFactoryNames {
		d.factories[n] = FactoryRef{Name: n, URL: url, Kind: factoryKind(n)}
	}
	for k, v := range env {
		d.env[k] = v
		switch {
		case strings.HasPrefix(k, ConnectionFactoryPrefix):
			name := strings.TrimPrefix(k, ConnectionFactoryPrefix)
			if v == "" {
				v = url
			}
			d.factories[name] = FactoryRef{Name: name, URL: v, Kind: factoryKind(name)}
		case strings.HasPrefix(k, QueuePrefix):
			name := strings.TrimPrefix(k, QueuePrefix)
			d.destinations[name] = core.Destination{Name: v, Type: core.DestinationQueue}
		case strings.HasPrefix(k, TopicPrefix):
			name := strings.TrimPrefix(k, TopicPrefix)
			d.destinations[name] = core.Destination{Name: v, Type: core.DestinationTopic}
		}
	}
	return d, nil
}

func factoryKind(name string) core.ConnectionKind {
	switch {
	case strings.HasPrefix(name, "Queue"):
		return core.ConnectionQueue
	case strings.HasPrefix(name, "Topic"):
		return core.ConnectionTopic
	default:
		return core.ConnectionGeneric
	}
}

func (d *Directory) Environment() map[string]string {
	cp := make(map[string]string, len(d.env))
	for k, v := range d.env {
		cp[k] = v
	}
	return cp
}

func (d *Directory) LookupDestination(name string) (core.Destination, error) {
	if dest, ok := d.destinations[name]; ok {
		return dest, nil
	}
	if !d.dynamic {
		return core.Destination{}, fmt.Errorf("destination %q: %w", name, core.ErrNameNotFound)
	}
	switch {
	case strings.HasPrefix(name, DynamicQueuesPrefix) && len(name) > len(DynamicQueuesPrefix):
		return core.Destination{Name: strings.TrimPrefix(name, DynamicQueuesPrefix), Type: core.DestinationQueue}, nil
	case strings.HasPrefix(name, DynamicTopicsPrefix) && len(name) > len(DynamicTopicsPrefix):
		return core.Destination{Name: strings.TrimPrefix(name, DynamicTopicsPrefix), Type: core.DestinationTopic}, nil
	}
	return core.Destination{}, fmt.Errorf("destination %q: %w", name, core.ErrNameNotFound)
}

func (d *Directory) LookupConnectionFactory(name string) (FactoryRef, error) {
	if ref, ok := d.factories[name]; ok {
		return ref, nil
	}
	return FactoryRef{}, fmt.Errorf("connection factory %q: %w", name, core.ErrNameNotFound)
}

// IdentityContext returns a directory that maps name to itself as a
// destination of type t, keeping only the context-creation properties of d.
func (d *Directory) IdentityContext(name string, t core.DestinationType) (*Directory, error) {
	env := map[string]string{}
	for _, k := range []string{InitialContextFactory, ProviderURL, SecurityPrincipal, SecurityCredentials, DynamicDestinations} {
		if v, ok := d.env[k]; ok {
			env[k] = v
		}
	}
	if t == core.DestinationTopic {
		env[TopicPrefix+name] = name
	} else {
		env[QueuePrefix+name] = name
	}
	return New(env)
}
