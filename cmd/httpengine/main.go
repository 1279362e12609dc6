// Copyright 2024 The Httpengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command httpengine is a small CLI front end over the engine, useful
// for smoke-testing a config file or poking at an endpoint by hand.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caddyserver/httpengine"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "httpengine",
		Short:        "Drive HTTP requests through the httpengine client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML client config file")

	root.AddCommand(newGetCommand(), newPostCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadClient() (*httpengine.Client, error) {
	if configPath == "" {
		return httpengine.NewClient(httpengine.DefaultConfig())
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := httpengine.ConfigFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return httpengine.NewClient(cfg)
}

func newGetCommand() *cobra.Command {
	var header []string
	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Issue a GET request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			defer client.Close()

			rb := httpengine.NewRequestBuilder().URL(args[0]).Get()
			applyHeaders(rb, header)
			req, err := rb.Build()
			if err != nil {
				return err
			}
			return execute(client, req)
		},
	}
	cmd.Flags().StringArrayVarP(&header, "header", "H", nil, "request header (name: value), repeatable")
	return cmd
}

func newPostCommand() *cobra.Command {
	var header []string
	var contentType string
	cmd := &cobra.Command{
		Use:   "post <url>",
		Short: "Issue a POST request with stdin as the body and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := loadClient()
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			rb := httpengine.NewRequestBuilder().URL(args[0]).Post(httpengine.NewByteBody(contentType, data))
			applyHeaders(rb, header)
			req, err := rb.Build()
			if err != nil {
				return err
			}
			return execute(client, req)
		},
	}
	cmd.Flags().StringArrayVarP(&header, "header", "H", nil, "request header (name: value), repeatable")
	cmd.Flags().StringVar(&contentType, "content-type", "application/octet-stream", "request body content type")
	return cmd
}

func applyHeaders(rb *httpengine.RequestBuilder, header []string) {
	for _, h := range header {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			continue
		}
		rb.AddHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}
}

func execute(client *httpengine.Client, req *httpengine.Request) error {
	resp, err := client.NewCall(req).Execute()
	if err != nil {
		return err
	}
	defer resp.Body().Close()

	fmt.Printf("%s %d %s\n", resp.Proto(), resp.StatusCode(), resp.Status())
	for i := 0; i < resp.Headers().Len(); i++ {
		fmt.Printf("%s: %s\n", resp.Headers().Name(i), resp.Headers().Value(i))
	}
	fmt.Println()

	body, err := resp.Body().Bytes()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(body)
	return err
}
