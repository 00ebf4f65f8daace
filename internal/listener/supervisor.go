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

package listener

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

const (
	DefaultInitialDelay    = 10 * time.Second
	DefaultFactor          = 2.0
	DefaultMaxDelay        = time.Hour
	DefaultConfirmAttempts = 3
	DefaultConfirmInterval = time.Second
)

type SupervisorConfig struct {
	InitialDelay    time.Duration
	Factor          float64
	MaxDelay        time.Duration
	ConfirmAttempts int
	ConfirmInterval time.Duration
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		InitialDelay:    DefaultInitialDelay,
		Factor:          DefaultFactor,
		MaxDelay:        DefaultMaxDelay,
		ConfirmAttempts: DefaultConfirmAttempts,
		ConfirmInterval: DefaultConfirmInterval,
	}
}

// Supervisor holds services back until their broker answers a probe. Probes
// that fail transiently are retried forever on a capped exponential
// schedule.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewSupervisor(cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	def := DefaultSupervisorConfig()
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.Factor < 1 {
		cfg.Factor = def.Factor
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = def.ConfirmAttempts
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = def.ConfirmInterval
	}
	return &Supervisor{
		cfg:    cfg,
		logger: logger.With("component", "supervisor"),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewBackOff returns the retry schedule: InitialDelay, growing by Factor up
// to MaxDelay, with no jitter and no overall deadline.
func (s *Supervisor) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialDelay
	b.Multiplier = s.cfg.Factor
	b.MaxInterval = s.cfg.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// AwaitBroker blocks until probe succeeds. Only transient broker errors are
// retried; anything else, or ctx ending, is returned.
func (s *Supervisor) AwaitBroker(ctx context.Context, factory string, probe func(context.Context) error) error {
	b := s.NewBackOff()
	for attempt := 1; ; attempt++ {
		err := probe(ctx)
		if err == nil {
			if attempt > 1 {
				s.logger.Info("broker reachable", "connection_factory", factory, "attempts", attempt)
			}
			return nil
		}
		if !core.IsTransient(err) {
			return err
		}
		wait := b.NextBackOff()
		s.logger.Warn("broker not reachable, retrying",
			"connection_factory", factory,
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// ConfirmStarted polls ready a few times. A service that does not become
// ready only gets a warning; its tasks keep retrying on their own.
func (s *Supervisor) ConfirmStarted(ctx context.Context, service string, ready func() bool) bool {
	for i := 0; i < s.cfg.ConfirmAttempts; i++ {
		if ready() {
			return true
		}
		if err := s.sleep(ctx, s.cfg.ConfirmInterval); err != nil {
			return false
		}
	}
	if ready() {
		return true
	}
	s.logger.Warn("service did not attach consumers in time; tasks keep retrying",
		"service", service,
		"waited", time.Duration(s.cfg.ConfirmAttempts)*s.cfg.ConfirmInterval,
	)
	return false
}
