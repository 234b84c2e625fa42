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
franz-discover - Franz Broker Discovery Tool

Finds Franz brokers advertising on the local network over mDNS
(Bonjour/Avahi). Brokers advertise when discovery.enabled is set.

Usage:

	franz-discover                    # Browse for 5 seconds
	franz-discover --timeout 10       # Custom timeout in seconds
	franz-discover --json             # Output as JSON
	franz-discover --quiet            # Only output addresses (for scripting)
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"franz/internal/banner"
	"franz/internal/discovery"
	"franz/pkg/cli"
)

func main() {
	timeout := flag.Int("timeout", 5, "Discovery timeout in seconds")
	jsonOutput := flag.Bool("json", false, "Output as JSON")
	quiet := flag.Bool("quiet", false, "Only output broker addresses (for scripting)")
	service := flag.String("service", discovery.DefaultService, "mDNS service name")
	domain := flag.String("domain", discovery.DefaultDomain, "mDNS domain")
	version := flag.Bool("version", false, "Show version information")
	flag.BoolVar(quiet, "q", false, "Only output broker addresses (for scripting)")
	flag.BoolVar(version, "v", false, "Show version information")
	flag.Usage = func() { printUsage(os.Stdout) }
	flag.Parse()

	if *version {
		printTitle(os.Stdout)
		fmt.Println(cli.Dim + "  " + banner.Copyright + cli.Reset)
		fmt.Println()
		return
	}

	// The mDNS library logs non-fatal IPv6 errors through the std logger.
	log.SetOutput(io.Discard)

	human := !*quiet && !*jsonOutput
	if human {
		printTitle(os.Stdout)
		cli.Info("Scanning for Franz brokers on the network (timeout: %ds)...", *timeout)
		fmt.Println()
	}

	wait := time.Duration(*timeout) * time.Second
	nodes, err := discovery.Browse(context.Background(), *service, *domain, wait)
	if err != nil {
		if !*quiet {
			cli.Error("Discovery failed: %v", err)
		}
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		outputJSON(os.Stdout, nodes)
	case *quiet:
		outputQuiet(os.Stdout, nodes)
	case len(nodes) == 0:
		printNoneFound(cli.Std)
	default:
		outputHuman(cli.Std, nodes)
	}
}

func printTitle(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, cli.Cyan+cli.Bold)
	for _, line := range banner.GetBannerLines() {
		fmt.Fprintln(w, "  "+line)
	}
	fmt.Fprintln(w, cli.Reset)
	fmt.Fprintln(w, cli.Green+cli.Bold+"  Franz Discover"+cli.Reset+" "+cli.Dim+"v"+banner.Version+cli.Reset)
	fmt.Fprintln(w, cli.Dim+"  Network Broker Discovery Tool"+cli.Reset)
	fmt.Fprintln(w)
}

func printUsage(w io.Writer) {
	printTitle(w)
	fmt.Fprintln(w, cli.Bold+"Usage:"+cli.Reset+" franz-discover [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, cli.Bold+cli.Cyan+"OPTIONS"+cli.Reset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "    "+cli.Green+"--timeout"+cli.Reset+" <seconds>   Discovery timeout (default: 5)")
	fmt.Fprintln(w, "    "+cli.Green+"--json"+cli.Reset+"               Output results as JSON")
	fmt.Fprintln(w, "    "+cli.Green+"--quiet"+cli.Reset+", "+cli.Green+"-q"+cli.Reset+"          Only output addresses (for scripting)")
	fmt.Fprintln(w, "    "+cli.Green+"--service"+cli.Reset+" <name>      mDNS service (default: "+discovery.DefaultService+")")
	fmt.Fprintln(w, "    "+cli.Green+"--version"+cli.Reset+", "+cli.Green+"-v"+cli.Reset+"        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, cli.Bold+cli.Cyan+"EXAMPLES"+cli.Reset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, cli.Dim+"    # Point franz-cli at the first broker found"+cli.Reset)
	fmt.Fprintln(w, "    FRANZ_ADDR=$(franz-discover --quiet | cut -d, -f1) franz-cli info orders")
	fmt.Fprintln(w)
	fmt.Fprintln(w, cli.Bold+cli.Cyan+"NETWORK REQUIREMENTS"+cli.Reset)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "    "+cli.Yellow+"•"+cli.Reset+" mDNS uses UDP port 5353 (multicast)")
	fmt.Fprintln(w, "    "+cli.Yellow+"•"+cli.Reset+" Brokers must be on the same network segment")
	fmt.Fprintln(w)
}

func printNoneFound(p *cli.Printer) {
	p.Warning("No Franz brokers found on the network.")
	fmt.Fprintln(p.Out)
	p.Header("TROUBLESHOOTING")
	fmt.Fprintln(p.Out, "    • brokers are not running with discovery.enabled")
	fmt.Fprintln(p.Out, "    • mDNS is blocked by a firewall (UDP port 5353)")
	fmt.Fprintln(p.Out)
}

func outputJSON(w io.Writer, nodes []discovery.Node) {
	if nodes == nil {
		nodes = []discovery.Node{}
	}
	data, _ := json.MarshalIndent(nodes, "", "  ")
	fmt.Fprintln(w, string(data))
}

func outputQuiet(w io.Writer, nodes []discovery.Node) {
	addrs := make([]string, len(nodes))
	for i, n := range nodes {
		addrs[i] = n.Addr
	}
	fmt.Fprintln(w, strings.Join(addrs, ","))
}

func outputHuman(p *cli.Printer, nodes []discovery.Node) {
	p.Success("Found %d Franz broker(s)", len(nodes))
	fmt.Fprintln(p.Out)
	for i, n := range nodes {
		p.Header(fmt.Sprintf("  [%d] %s", i+1, n.NodeID))
		p.KeyValue("    Address", n.Addr)
		if n.Host != "" {
			p.KeyValue("    Host", n.Host)
		}
		if n.Version != "" {
			p.KeyValue("    Version", n.Version)
		}
		fmt.Fprintln(p.Out)
	}
}
