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
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wso2/api-platform/gateway/jms-bridge/internal/jms"
	"github.com/wso2/api-platform/gateway/jms-bridge/internal/sender"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/config"
	"github.com/wso2/api-platform/gateway/jms-bridge/pkg/core"
)

type sendOptions struct {
	url         string
	factory     string
	body        string
	bodyFile    string
	contentType string
	headers     map[string]string
	wait        bool
	waitFor     time.Duration
}

func newSendCmd(opts *globalOptions) *cobra.Command {
	so := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message to a jms:/ address",
		Example: `  jms-bridge send --url 'jms:/Orders?transport.jms.ConnectionFactory=default' --body '{"id":1}'
  jms-bridge send --url jms:/Quotes --wait --body ping`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd.Context(), opts, so, cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&so.url, "url", "", "target jms:/ address")
	fs.StringVar(&so.factory, "factory", "", "connection factory to send through, overriding the address")
	fs.StringVar(&so.body, "body", "", "message body")
	fs.StringVar(&so.bodyFile, "body-file", "", "read the message body from a file")
	fs.StringVar(&so.contentType, "content-type", "text/plain", "content type of the body")
	fs.StringToStringVarP(&so.headers, "header", "H", nil, "transport header, repeatable (JMS_PRIORITY=7)")
	fs.BoolVar(&so.wait, "wait", false, "wait for a correlated reply and print it")
	fs.DurationVar(&so.waitFor, "wait-timeout", 0, "how long --wait waits, overriding transport.jms.WaitReply")
	_ = cmd.MarkFlagRequired("url")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
	return cmd
}

func runSend(ctx context.Context, opts *globalOptions, so *sendOptions, out io.Writer) error {
	logger := opts.logger()
	cfg, err := opts.load()
	if err != nil {
		// sending to a fully specified address needs no descriptor
		logger.Warn("config not loaded, using one-shot factories", "path", opts.configPath, "error", err)
		cfg = &config.Config{}
	}
	target := so.url
	if so.factory != "" {
		if _, err := jms.ParseURL(target); err != nil {
			return err
		}
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + jms.ParamConnectionFactory + "=" + so.factory
	}
	body := []byte(so.body)
	if so.bodyFile != "" {
		if body, err = os.ReadFile(so.bodyFile); err != nil {
			return err
		}
	}

	providers := newProviders(logger)
	factories := newFactories(cfg, providers, logger)
	defer factories.StopAll()

	t := sender.NewTransport(sender.TransportOptions{
		Factories: factories,
		Providers: providers,
		Engine:    replyPrinter{out: out},
		Logger:    logger,
	})
	headers := make(map[string]any, len(so.headers))
	for k, v := range so.headers {
		headers[k] = v
	}
	return t.Send(ctx, target, &sender.Outbound{
		Payload:     &core.Payload{Kind: core.BodyText, Text: string(body)},
		ContentType: so.contentType,
		Headers:     headers,
		WaitReply:   so.wait,
		Wait:        so.waitFor,
	})
}

// replyPrinter writes synchronous replies to the terminal.
type replyPrinter struct {
	out io.Writer
}

func (p replyPrinter) HandleIncomingMessage(ctx context.Context, req *core.RequestContext, headers map[string]any, action string, contentType string) (*core.EngineResult, error) {
	pl := req.Payload
	switch pl.Kind {
	case core.BodyText:
		fmt.Fprintln(p.out, pl.Text)
	case core.BodyMap:
		for k, v := range pl.Map {
			fmt.Fprintf(p.out, "%s=%s\n", k, core.FormatValue(v))
		}
	default:
		p.out.Write(pl.Bytes)
		fmt.Fprintln(p.out)
	}
	return &core.EngineResult{}, nil
}
