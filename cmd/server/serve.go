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
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/config"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(parent context.Context, opts *globalOptions) error {
	logger := opts.logger()
	cfg, err := opts.load()
	if err != nil {
		logger.Error("failed to load config", "path", opts.configPath, "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	a.deploy(cfg)

	watcher := config.NewWatcher(opts.configPath, func(next *config.Config) {
		opts.env.Apply(next)
		a.reload(next)
	}, logger)
	go watcher.Watch(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server().Start(ctx)
	}()

	logger.Info("jms bridge started", "config", opts.configPath, "services", len(cfg.Services))

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			logger.Error("admin server failed", "error", err)
		}
	}

	logger.Info("shutting down jms bridge")
	if cerr := a.close(); cerr != nil {
		logger.Warn("fault store close failed", "error", cerr)
	}
	logger.Info("jms bridge stopped")
	return err
}
