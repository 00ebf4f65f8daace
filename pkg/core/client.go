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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/google/uuid"
)

func NewMessageID() string {
	return "ID:" + uuid.NewString()
}

// GenerateClientID derives a stable client id from the host name and a
// subscription name, falling back to a random one.
func GenerateClientID(subscription string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "jms-bridge-" + uuid.NewString()
	}
	hash := sha256.Sum256([]byte(host + "/" + subscription))
	return "jms-bridge-" + hex.EncodeToString(hash[:])[:12]
}

// PrepareForSend stamps the headers a producer assigns at send time.
func PrepareForSend(msg *Message, dest Destination, opts SendOptions, now time.Time) {
	if msg.MessageID == "" {
		msg.MessageID = NewMessageID()
	}
	d := dest
	msg.Destination = &d
	msg.Timestamp = now
	if opts.DeliveryMode != 0 {
		msg.DeliveryMode = opts.DeliveryMode
	} else if msg.DeliveryMode == 0 {
		msg.DeliveryMode = Persistent
	}
	msg.Priority = opts.Priority
	if opts.TimeToLive > 0 {
		msg.Expiration = now.Add(opts.TimeToLive)
	} else {
		msg.Expiration = time.Time{}
	}
}

type principalKey struct{}

type serviceKey struct{}

// WithPrincipal scopes ctx to the identity the bridge acts as.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func PrincipalFrom(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok && p != ""
}

func WithService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, serviceKey{}, service)
}

func ServiceFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(serviceKey{}).(string)
	return s, ok && s != ""
}
