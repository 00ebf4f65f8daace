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

package core

import (
	"errors"
	"fmt"
)

var (
	ErrNameNotFound          = errors.New("name not found")
	ErrUnsupported           = errors.New("operation not supported by provider")
	ErrClosed                = errors.New("resource closed")
	ErrMissingBinding        = errors.New("destination binding missing")
	ErrFactoryNotFound       = errors.New("connection factory not found")
	ErrServiceNotFound       = errors.New("service not found")
	ErrContentTypeUnresolved = errors.New("content type unresolved")
	ErrMessageTooLarge       = errors.New("message exceeds maximum size")
	ErrPayloadConversion     = errors.New("payload conversion failed")
)

// ConfigError reports malformed or missing factory or service configuration.
type ConfigError struct {
	Scope string
	Param string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("config %s: %v", e.Scope, e.Err)
	}
	return fmt.Sprintf("config %s: %s: %v", e.Scope, e.Param, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type TransientBrokerError struct {
	Factory string
	Op      string
	Err     error
}

func (e *TransientBrokerError) Error() string {
	return fmt.Sprintf("broker %s: %s: %v", e.Factory, e.Op, e.Err)
}

func (e *TransientBrokerError) Unwrap() error { return e.Err }

type PoisonMessageError struct {
	Service   string
	MessageID string
	Err       error
}

func (e *PoisonMessageError) Error() string {
	return fmt.Sprintf("poison message %s on %s: %v", e.MessageID, e.Service, e.Err)
}

func (e *PoisonMessageError) Unwrap() error { return e.Err }

type SendError struct {
	Destination Destination
	Err         error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Destination, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

type ResourceCleanupError struct {
	Resource string
	Err      error
}

func (e *ResourceCleanupError) Error() string {
	return fmt.Sprintf("close %s: %v", e.Resource, e.Err)
}

func (e *ResourceCleanupError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var t *TransientBrokerError
	return errors.As(err, &t)
}

func IsConfig(err error) bool {
	var c *ConfigError
	return errors.As(err, &c)
}
