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
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/logging"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/config"
)

// globalOptions are shared by every subcommand. Flags win over the
// JMS_BRIDGE_* environment.
type globalOptions struct {
	env        config.Env
	configPath string
	logLevel   string
}

func (o *globalOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", o.env.ConfigPath, "path to the bridge descriptor")
	fs.StringVar(&o.logLevel, "log-level", o.env.LogLevel, "log level: debug, info, warn or error")
}

func (o *globalOptions) logger() *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logging.ParseLevel(o.logLevel)})
	return slog.New(logging.NewContextHandler(h))
}

func (o *globalOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	o.env.Apply(cfg)
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{env: config.LoadEnv()}
	rootCmd := &cobra.Command{
		Use:           "jms-bridge",
		Short:         "JMS transport bridge",
		Long:          "jms-bridge listens on JMS destinations across AMQP, RabbitMQ, Kafka, MQTT and Solace brokers and relays messages through a routing engine.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	opts.bind(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCmd(opts),
		newProbeCmd(opts),
		newSendCmd(opts),
	)
	return rootCmd
}
