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

package routing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/contenttype"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

type Transactionality int

const (
	TxNone Transactionality = iota
	TxLocal
	TxJTA
)

func (t Transactionality) String() string {
	switch t {
	case TxLocal:
		return "local"
	case TxJTA:
		return "jta"
	default:
		return "none"
	}
}

// Route tells the engine what to do with a service's messages.
type Route struct {
	Action string
	Target string
}

// Binding ties one service to its destination, reply destination and
// content type rules.
type Binding struct {
	Service          string
	Factory          string
	Destination      core.Destination
	ReplyDestination *core.Destination

	Rules               contenttype.Config
	ContentTypes        *contenttype.RuleSet
	ContentTypeProperty string

	Concurrency      int
	ReceiveTimeout   time.Duration
	Selector         string
	Durable          bool
	SubscriptionName string
	ClientID         string
	NoLocal          bool

	Transactionality  Transactionality
	SessionTransacted bool
	AckMode           core.AckMode
	MaxMessageSize    int64

	Route      Route
	Parameters map[string]string
	// Warnings lists parameters that were accepted but adjusted.
	Warnings []string
}

const (
	DefaultReceiveTimeout = time.Second
	DefaultConcurrency    = 1
)

func NewBinding(service string, params map[string]string, rules contenttype.Config, route Route) (*Binding, error) {
	b := &Binding{
		Service:        service,
		Rules:          rules,
		Route:          route,
		Parameters:     make(map[string]string, len(params)),
		Concurrency:    DefaultConcurrency,
		ReceiveTimeout: DefaultReceiveTimeout,
	}
	for k, v := range params {
		b.Parameters[k] = v
	}
	bad := func(param string, err error) (*Binding, error) {
		return nil, &core.ConfigError{Scope: service, Param: param, Err: err}
	}
	if strings.TrimSpace(service) == "" {
		return bad("name", core.ErrServiceNotFound)
	}

	b.Factory = params[jms.ParamConnectionFactory]
	if b.Factory == "" {
		b.Factory = jms.DefaultFactoryName
	}

	name := params[jms.ParamDestination]
	if name == "" {
		name = service
	}
	dt, err := core.ParseDestinationType(params[jms.ParamDestinationType], core.DestinationQueue)
	if err != nil {
		return bad(jms.ParamDestinationType, err)
	}
	b.Destination = core.Destination{Name: name, Type: dt}

	if rn := params[jms.ParamReplyDestination]; rn != "" {
		rt, err := core.ParseDestinationType(params[jms.ParamReplyDestinationType], core.DestinationQueue)
		if err != nil {
			return bad(jms.ParamReplyDestinationType, err)
		}
		b.ReplyDestination = &core.Destination{Name: rn, Type: rt}
	}

	b.ContentTypeProperty = params[jms.ParamContentTypeProperty]
	if b.ContentTypeProperty != "" && rules.Property == "" {
		rules.Property = b.ContentTypeProperty
		b.Rules = rules
	}
	if b.ContentTypes, err = rules.RuleSet(); err != nil {
		return bad("content_type", err)
	}
	if b.ContentTypeProperty == "" {
		b.ContentTypeProperty = b.ContentTypes.Property()
	}

	if v := params[jms.ParamConcurrentConsumers]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return bad(jms.ParamConcurrentConsumers, fmt.Errorf("want a positive integer, got %q", v))
		}
		b.Concurrency = n
	}
	if v := params[jms.ParamReceiveTimeout]; v != "" {
		d, err := parseMillis(v)
		if err != nil || d <= 0 {
			return bad(jms.ParamReceiveTimeout, fmt.Errorf("want a positive duration, got %q", v))
		}
		b.ReceiveTimeout = d
	}

	b.Selector = params[jms.ParamMessageSelector]
	if b.Durable, err = parseBool(params[jms.ParamSubscriptionDurable]); err != nil {
		return bad(jms.ParamSubscriptionDurable, err)
	}
	if b.NoLocal, err = parseBool(params[jms.ParamPubSubNoLocal]); err != nil {
		return bad(jms.ParamPubSubNoLocal, err)
	}
	if b.Durable {
		if b.Destination.Type != core.DestinationTopic {
			return bad(jms.ParamSubscriptionDurable, fmt.Errorf("durable subscriptions need a topic destination"))
		}
		b.SubscriptionName = params[jms.ParamDurableSubscriberName]
		if b.SubscriptionName == "" {
			b.SubscriptionName = service
		}
		b.ClientID = params[jms.ParamDurableClientID]
		if b.ClientID == "" {
			b.ClientID = core.GenerateClientID(b.SubscriptionName)
		}
	}

	// Each topic task holds its own subscription and would see every message.
	if b.Destination.Type == core.DestinationTopic && b.Concurrency > 1 {
		b.Warnings = append(b.Warnings, fmt.Sprintf("%s=%d ignored for topic %s, using 1 consumer",
			jms.ParamConcurrentConsumers, b.Concurrency, b.Destination.Name))
		b.Concurrency = 1
	}

	switch strings.ToLower(strings.TrimSpace(params[jms.ParamTransactionality])) {
	case "", "none":
		b.Transactionality = TxNone
	case "local":
		b.Transactionality = TxLocal
	case "jta":
		b.Transactionality = TxJTA
	default:
		return bad(jms.ParamTransactionality, fmt.Errorf("want none, local or jta"))
	}
	if b.SessionTransacted, err = parseBool(params[jms.ParamSessionTransacted]); err != nil {
		return bad(jms.ParamSessionTransacted, err)
	}
	if b.Transactionality == TxLocal {
		b.SessionTransacted = true
	}
	if b.AckMode, err = core.ParseAckMode(params[jms.ParamSessionAck], core.AckAuto); err != nil {
		return bad(jms.ParamSessionAck, err)
	}

	if v := params[jms.ParamMaxMessageSize]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return bad(jms.ParamMaxMessageSize, fmt.Errorf("want a byte count, got %q", v))
		}
		b.MaxMessageSize = n
	}
	return b, nil
}

// SessionOptions are the options polling tasks open their sessions with.
func (b *Binding) SessionOptions() core.SessionOptions {
	return core.SessionOptions{Transacted: b.SessionTransacted, AckMode: b.AckMode}
}

func (b *Binding) ConsumerOptions() core.ConsumerOptions {
	return core.ConsumerOptions{
		Selector:         b.Selector,
		NoLocal:          b.NoLocal,
		Durable:          b.Durable,
		SubscriptionName: b.SubscriptionName,
	}
}

// Equal reports whether two bindings came from the same descriptor entry.
func (b *Binding) Equal(o *Binding) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Service != o.Service || b.Rules != o.Rules || b.Route != o.Route || len(b.Parameters) != len(o.Parameters) {
		return false
	}
	for k, v := range b.Parameters {
		if ov, ok := o.Parameters[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// parseMillis accepts a plain millisecond count or a Go duration.
func parseMillis(s string) (time.Duration, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func parseBool(s string) (bool, error) {
	if strings.TrimSpace(s) == "" {
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}
