/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"franz/internal/banner"
	"franz/internal/protocol"
	"franz/pkg/cli"
	"franz/pkg/client"
)

const (
	defaultAddr = "localhost:8084"
	envAddr     = "FRANZ_ADDR"
)

// newRoot constructs the franz-cli command tree.
func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "franz-cli",
		Short:         "Franz client commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addr := defaultAddr
	if v := os.Getenv(envAddr); v != "" {
		addr = v
	}
	root.PersistentFlags().StringP("addr", "a", addr, "Broker address (env "+envAddr+")")
	root.PersistentFlags().Int("retries", 3, "Connection retries")
	root.PersistentFlags().Duration("keepalive", client.DefaultKeepaliveInterval, "Broker keepalive interval")

	root.AddCommand(
		newProduceCommand(),
		newConsumeCommand(),
		newInfoCommand(),
		newVersionCommand(),
	)
	return root
}

func connection(cmd *cobra.Command) (string, client.Options) {
	addr, _ := cmd.Flags().GetString("addr")
	retries, _ := cmd.Flags().GetInt("retries")
	keepalive, _ := cmd.Flags().GetDuration("keepalive")
	return addr, client.Options{MaxRetries: retries, KeepaliveInterval: keepalive}
}

func printer(cmd *cobra.Command) *cli.Printer {
	return &cli.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Color: cli.Std.Color}
}

// newProduceCommand constructs the `produce` subcommand.
func newProduceCommand() *cobra.Command {
	produceCmd := &cobra.Command{
		Use:     "produce <topic>",
		Aliases: []string{"pub"},
		Short:   "Append records to a topic",
		Long:    "Append each -m value as one record, or every line of stdin when no -m is given.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messages, _ := cmd.Flags().GetStringArray("message")
			quiet, _ := cmd.Flags().GetBool("quiet")
			addr, opts := connection(cmd)

			p, err := client.NewProducer(cmd.Context(), addr, args[0], opts)
			if err != nil {
				return err
			}
			defer p.Close()

			sent := 0
			if len(messages) > 0 {
				for _, m := range messages {
					if err := p.Send([]byte(m)); err != nil {
						return fmt.Errorf("failed to produce: %w", err)
					}
					sent++
				}
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
				for sc.Scan() {
					if err := p.Send(sc.Bytes()); err != nil {
						return fmt.Errorf("failed to produce: %w", err)
					}
					sent++
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
			}

			if err := p.Close(); err != nil {
				return err
			}
			if !quiet {
				printer(cmd).Success("Sent %d records to %s", sent, args[0])
			}
			return nil
		},
	}
	produceCmd.Flags().StringArrayP("message", "m", nil, "Record to send (repeatable)")
	produceCmd.Flags().BoolP("quiet", "q", false, "Do not print a summary")
	return produceCmd
}

// newConsumeCommand constructs the `consume` subcommand.
func newConsumeCommand() *cobra.Command {
	consumeCmd := &cobra.Command{
		Use:     "consume <topic>",
		Aliases: []string{"sub"},
		Short:   "Print records from a topic as they arrive",
		Long: "Without -g the topic is tailed from its current end. With -g the " +
			"records are shared with every other consumer of that group.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			addr, opts := connection(cmd)

			var group *uint16
			if cmd.Flags().Changed("group") {
				raw, _ := cmd.Flags().GetString("group")
				id, err := strconv.ParseUint(raw, 10, 16)
				if err != nil {
					return fmt.Errorf("invalid group %q: must be 0-65535", raw)
				}
				g := uint16(id)
				group = &g
			}

			c, err := client.NewConsumer(cmd.Context(), addr, args[0], group, opts)
			if err != nil {
				return err
			}
			defer c.Close()

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()
			for n := 0; limit <= 0 || n < limit; n++ {
				rec, err := c.Next(cmd.Context())
				if err != nil {
					if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				out.Write(rec)
				out.WriteByte('\n')
				if c.Buffered() == 0 {
					out.Flush()
				}
			}
			return nil
		},
	}
	consumeCmd.Flags().StringP("group", "g", "", "Consumer group id (0-65535)")
	consumeCmd.Flags().IntP("limit", "n", 0, "Stop after N records (0 = infinite)")
	return consumeCmd
}

// newInfoCommand constructs the `info` subcommand.
func newInfoCommand() *cobra.Command {
	infoCmd := &cobra.Command{
		Use:   "info <topic>",
		Short: "Show topic and broker details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			addr, opts := connection(cmd)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			info, err := client.Info(ctx, addr, args[0], opts)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infoView(info))
			}
			printInfo(printer(cmd), info)
			return nil
		},
	}
	infoCmd.Flags().Bool("json", false, "Print JSON")
	return infoCmd
}

type topicInfo struct {
	Version    string   `json:"version"`
	NodeID     string   `json:"node_id"`
	Topic      string   `json:"topic"`
	Exists     bool     `json:"exists"`
	NextOffset *uint64  `json:"next_offset,omitempty"`
	Groups     []uint16 `json:"groups,omitempty"`
	Topics     []string `json:"topics"`
}

func infoView(r *protocol.InfoResponse) topicInfo {
	v := topicInfo{
		Version: r.Version,
		NodeID:  r.NodeID,
		Topic:   r.Topic,
		Exists:  r.Exists,
		Groups:  r.Groups,
		Topics:  r.Topics,
	}
	if r.Exists {
		next := r.NextOffset
		v.NextOffset = &next
	}
	if v.Topics == nil {
		v.Topics = []string{}
	}
	return v
}

func printInfo(p *cli.Printer, r *protocol.InfoResponse) {
	p.Header(r.Topic)
	if r.Exists {
		p.KeyValue("next offset", r.NextOffset)
		groups := make([]string, len(r.Groups))
		for i, g := range r.Groups {
			groups[i] = strconv.FormatUint(uint64(g), 10)
		}
		p.List("groups", groups)
	} else {
		p.KeyValue("exists", false)
	}
	p.Separator()
	p.KeyValue("node", r.NodeID)
	p.KeyValue("version", r.Version)
	p.List("topics", r.Topics)
}

// newVersionCommand constructs the `version` subcommand.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			banner.PrintTo(cmd.OutOrStdout())
		},
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "is franz running? set --addr or " + envAddr
	case errors.Is(err, client.ErrInvalidRecord):
		return "records are newline-delimited; send multi-line values as separate records"
	}
	return ""
}
