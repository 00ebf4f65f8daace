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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

func newProbeCmd(opts *globalOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "probe [factory...]",
		Short: "Check that connection factories can reach their brokers",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := opts.logger()
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			factories := newFactories(cfg, newProviders(logger), logger)
			defer factories.StopAll()

			if len(args) == 0 {
				for _, f := range factories.Factories() {
					args = append(args, f.Name())
				}
			}
			var errs []error
			for _, name := range args {
				f, ok := factories.Lookup(name)
				if !ok {
					errs = append(errs, fmt.Errorf("%s: %w", name, core.ErrFactoryNotFound))
					continue
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				err := f.Probe(ctx)
				cancel()
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tFAIL\t%v\n", name, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tOK\n", name)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "connect timeout per factory")
	return cmd
}
