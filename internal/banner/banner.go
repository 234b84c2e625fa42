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

/*
Package banner provides the startup banner display for Franz.

USAGE:
======

	banner.PrintTo(os.Stdout)               // Plain banner
	banner.PrintServerWithConfigTo(w, cfg)  // Server banner with configuration

The banner text is embedded at compile time from banner.txt.
*/
package banner

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"franz/internal/config"
)

//go:embed banner.txt
var bannerText string

// ANSI escape codes for terminal text formatting.
const (
	AnsiRed    = "\033[31m"
	AnsiGreen  = "\033[32m"
	AnsiYellow = "\033[33m"
	AnsiCyan   = "\033[36m"
	AnsiReset  = "\033[0m"
	AnsiBold   = "\033[1m"
	AnsiDim    = "\033[2m"
)

// Version information
const (
	Version   = "0.1.0"
	Copyright = "Copyright (c) 2026 Firefly Software Solutions Inc."
	License   = "Licensed under Apache License 2.0"
)

// GetBanner returns the raw ASCII banner text.
func GetBanner() string {
	return bannerText
}

// GetBannerLines returns the banner as individual lines.
func GetBannerLines() []string {
	return strings.Split(strings.TrimRight(bannerText, "\n"), "\n")
}

// PrintTo writes the banner to the specified writer.
func PrintTo(w io.Writer) {
	printHeader(w, "Franz")
	fmt.Fprintln(w, AnsiDim+"  "+Copyright+AnsiReset)
	fmt.Fprintln(w)
}

// PrintServerWithConfigTo writes the server banner followed by the
// settings an operator usually wants to confirm at startup.
func PrintServerWithConfigTo(w io.Writer, cfg *config.Config) {
	printHeader(w, "Franz Server")

	fmt.Fprint(w, "  "+AnsiDim+"Config: "+AnsiReset)
	if cfg.ConfigFile != "" {
		fmt.Fprintln(w, AnsiYellow+cfg.ConfigFile+AnsiReset)
	} else {
		fmt.Fprintln(w, AnsiDim+"defaults + environment"+AnsiReset)
	}

	row(w, "Node", cfg.NodeID)
	row(w, "Listen", cfg.BindAddr)
	row(w, "Data", cfg.DataDir)
	row(w, "Keepalive", cfg.KeepaliveInterval().String())
	row(w, "Drain", cfg.DrainTimeout().String())
	row(w, "Groups", groupStart(cfg))
	if cfg.WS.Enabled {
		row(w, "WebSocket", cfg.WS.Addr)
	}
	if cfg.Observability.Metrics.Enabled {
		row(w, "Metrics", cfg.Observability.Metrics.Addr)
	}
	if cfg.Observability.Health.Enabled {
		row(w, "Health", cfg.Observability.Health.Addr)
	}
	if cfg.Discovery.Enabled {
		row(w, "mDNS", cfg.Discovery.Service+"."+cfg.Discovery.Domain)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, AnsiDim+"  "+Copyright+AnsiReset)
	fmt.Fprintln(w)
	printLogSeparator(w)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, AnsiCyan+AnsiBold)
	for _, line := range GetBannerLines() {
		fmt.Fprintln(w, "  "+line)
	}
	fmt.Fprintln(w, AnsiReset)
	fmt.Fprintln(w, AnsiGreen+AnsiBold+"  "+title+AnsiReset+" "+AnsiDim+"v"+Version+AnsiReset)
	fmt.Fprintln(w, AnsiDim+"  Line-oriented Message Broker"+AnsiReset)
	fmt.Fprintln(w)
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", AnsiDim, label, AnsiReset, value)
}

func groupStart(cfg *config.Config) string {
	s := cfg.Consumer.GroupStart
	if cfg.Consumer.MaxGroups > 0 {
		s += fmt.Sprintf(", max %d", cfg.Consumer.MaxGroups)
	}
	return s
}

func printLogSeparator(w io.Writer) {
	const lineWidth = 78
	text := " LOGS START HERE "
	padding := (lineWidth - len(text) - 4) / 2
	if padding < 0 {
		padding = 0
	}
	line := strings.Repeat("-", padding)
	fmt.Fprintf(w, "  %svv%s %s%s%s %svv%s\n",
		AnsiYellow, line, AnsiBold, text, AnsiReset+AnsiYellow, line, AnsiReset)
	fmt.Fprintln(w)
}
