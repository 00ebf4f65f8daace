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
	"strconv"
	"strings"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

// FactoryConfig is the immutable configuration of one connection factory.
type FactoryConfig struct {
	Name       string
	Properties map[string]string

	CacheLevel core.CacheLevel
	JMSSpec11  bool
	Kind       core.ConnectionKind
	JNDIName   string

	DestinationName      string
	DestinationType      core.DestinationType
	ReplyDestinationName string
	ReplyDestinationType core.DestinationType

	SessionTransacted bool
	AckMode           core.AckMode

	Username string
	Password string
	ClientID string
}

func NewFactoryConfig(name string, props map[string]string) (FactoryConfig, error) {
	cfg := FactoryConfig{
		Name:       name,
		Properties: make(map[string]string, len(props)),
	}
	for k, v := range props {
		cfg.Properties[k] = v
	}
	if strings.TrimSpace(name) == "" {
		return cfg, &core.ConfigError{Scope: "connection factory", Param: "name", Err: core.ErrNameNotFound}
	}
	bad := func(param string, err error) (FactoryConfig, error) {
		return cfg, &core.ConfigError{Scope: name, Param: param, Err: err}
	}

	var err error
	if cfg.CacheLevel, err = core.ParseCacheLevel(props[ParamCacheLevel], core.CacheProducer); err != nil {
		return bad(ParamCacheLevel, err)
	}
	switch strings.TrimSpace(props[ParamSpecVersion]) {
	case "", "1.1", "2.0":
		cfg.JMSSpec11 = true
	case "1.0.2b", "1.0":
		cfg.JMSSpec11 = false
	default:
		return bad(ParamSpecVersion, strconv.ErrSyntax)
	}
	switch strings.ToLower(strings.TrimSpace(props[ParamConnectionFactoryType])) {
	case "":
		cfg.Kind = core.ConnectionGeneric
	case "queue":
		cfg.Kind = core.ConnectionQueue
	case "topic":
		cfg.Kind = core.ConnectionTopic
	default:
		return bad(ParamConnectionFactoryType, strconv.ErrSyntax)
	}
	cfg.JNDIName = props[ParamConnectionFactoryJNDI]
	if cfg.JNDIName == "" {
		cfg.JNDIName = "ConnectionFactory"
	}

	cfg.DestinationName = props[ParamDestination]
	if cfg.DestinationType, err = core.ParseDestinationType(props[ParamDestinationType], core.DestinationQueue); err != nil {
		return bad(ParamDestinationType, err)
	}
	cfg.ReplyDestinationName = props[ParamReplyDestination]
	if cfg.ReplyDestinationType, err = core.ParseDestinationType(props[ParamReplyDestinationType], core.DestinationQueue); err != nil {
		return bad(ParamReplyDestinationType, err)
	}

	if cfg.SessionTransacted, err = parseBool(props[ParamSessionTransacted], false); err != nil {
		return bad(ParamSessionTransacted, err)
	}
	if cfg.AckMode, err = core.ParseAckMode(props[ParamSessionAck], core.AckAuto); err != nil {
		return bad(ParamSessionAck, err)
	}

	cfg.Username = props[ParamUsername]
	cfg.Password = props[ParamPassword]
	if cfg.Username == "" {
		cfg.Username = props[ParamSecurityPrincipal]
		cfg.Password = props[ParamSecurityCredentials]
	}
	cfg.ClientID = props[ParamClientID]
	return cfg, nil
}

// OneShotConfig builds a non-caching factory from the properties of a
// jms:/ URL.
func OneShotConfig(info *OutTransportInfo) (FactoryConfig, error) {
	props := make(map[string]string, len(info.Properties)+1)
	for k, v := range info.Properties {
		props[k] = v
	}
	props[ParamCacheLevel] = core.CacheNone.String()
	return NewFactoryConfig("url:"+info.Destination.Name, props)
}

func parseBool(s string, def bool) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}
