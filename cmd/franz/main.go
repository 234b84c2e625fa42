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
Franz Server - Main Entry Point.

USAGE:
======

	franz [options]

OPTIONS:
========

	-config string    Path to configuration file (JSON format)
	-path string      Data root; one subdirectory per topic
	-addr string      TCP listen address
	-json             Emit logs as JSON instead of human-readable text
	-quiet            Skip banner and config display, output logs only
	-version          Show version information

Flags override environment variables, which override the config file.

STARTUP SEQUENCE:
=================
1. Parse flags, load config file and environment
2. Initialize logging
3. Lock the data root
4. Start the TCP broker
5. Start the optional WebSocket gateway, metrics, health and mDNS
6. Run until SIGINT or SIGTERM, then drain sessions
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"franz/internal/banner"
	"franz/internal/broker"
	"franz/internal/config"
	"franz/internal/discovery"
	"franz/internal/health"
	"franz/internal/logging"
	"franz/internal/metrics"
	"franz/internal/server/ws"
	"franz/internal/storage"
	"franz/internal/topic"
)

func printHelp() {
	banner.PrintTo(os.Stdout)
	fmt.Println()
	fmt.Println("\033[1;36mUsage:\033[0m")
	fmt.Println("  franz [options]")
	fmt.Println()
	fmt.Println("\033[1;36mOptions:\033[0m")
	fmt.Println("  -config string    Path to configuration file (JSON format)")
	fmt.Println("  -path string      Data root, one subdirectory per topic")
	fmt.Println("  -addr string      TCP listen address (default: 127.0.0.1:8084)")
	fmt.Println("  -json             Emit logs as JSON instead of human-readable text")
	fmt.Println("  -quiet            Skip banner and config display, output logs only")
	fmt.Println("  -version          Show version information")
	fmt.Println("  -help, -h         Show this help message")
	fmt.Println()
	fmt.Println("\033[1;36mEnvironment Variables:\033[0m")
	fmt.Println("  " + config.EnvBindAddr + "                  TCP listen address")
	fmt.Println("  " + config.EnvDataDir + "                   Data root")
	fmt.Println("  " + config.EnvNodeID + "                    Node identifier reported by info")
	fmt.Println("  " + config.EnvLogLevel + "                  Log level: debug, info, warn, error")
	fmt.Println("  " + config.EnvLogJSON + "                   Emit JSON logs when true")
	fmt.Println("  " + config.EnvKeepaliveInterval + "        Consumer keepalive interval")
	fmt.Println("  " + config.EnvDrainTimeout + "    Shutdown drain timeout")
	fmt.Println("  " + config.EnvGroupStart + "         New group start: earliest or latest")
	fmt.Println()
	fmt.Println("\033[1;36mExamples:\033[0m")
	fmt.Println("  # Start with JSON logs for a log collector")
	fmt.Println("  franz -json -path ./data")
	fmt.Println()
	fmt.Println("  # Start with custom config file")
	fmt.Println("  franz -config /etc/franz/franz.json")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-h" || arg == "--help" || arg == "-help" || arg == "help" {
			printHelp()
			return
		}
	}

	configPath := flag.String("config", "", "Path to configuration file")
	dataPath := flag.String("path", "", "Data root")
	bindAddr := flag.String("addr", "", "TCP listen address")
	jsonLogs := flag.Bool("json", false, "Emit logs as JSON instead of human-readable text")
	quietMode := flag.Bool("quiet", false, "Skip banner and config display, output logs only")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		banner.PrintTo(os.Stdout)
		return
	}

	cfgMgr := config.Global()
	if *configPath == "" {
		if p, ok := config.FindConfigFile(); ok {
			*configPath = p
		}
	}
	if *configPath != "" {
		if err := cfgMgr.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
			os.Exit(1)
		}
	}
	cfgMgr.LoadFromEnv()
	cfg := cfgMgr.Get()

	flagOverrides{
		dataPath: *dataPath,
		bindAddr: *bindAddr,
		jsonLogs: *jsonLogs,
	}.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfgMgr.Set(cfg)

	if !*quietMode {
		banner.PrintServerWithConfigTo(os.Stdout, cfg)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	logger := logging.NewLogger("main")

	if err := run(cfg, logger); err != nil {
		logger.Error("Franz stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Franz stopped")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Info("Starting Franz", "version", banner.Version, "node_id", cfg.NodeID, "data_dir", cfg.DataDir)

	lock, err := storage.LockDir(cfg.DataDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	registry := topic.NewRegistry(cfg.DataDir, broker.StorageConfig(cfg))
	srv := broker.NewServer(cfg, registry, broker.WithVersion(banner.Version))
	if err := srv.Start(); err != nil {
		registry.Close()
		return err
	}
	coord := srv.Coordinator()

	// ========================================================================
	// Optional Services
	// ========================================================================

	if cfg.WS.Enabled {
		gw := ws.NewGateway(cfg, srv, logging.NewLogger("ws"))
		if err := gw.Start(); err != nil {
			logger.Error("Failed to start WebSocket gateway", "error", err)
		} else {
			logger.Info("WebSocket gateway started", "addr", gw.Addr().String())
		}
	}

	if cfg.Observability.Metrics.Enabled {
		metricsServer := metrics.NewServer(&cfg.Observability.Metrics)
		if err := metricsServer.Start(); err != nil {
			logger.Error("Failed to start metrics server", "error", err)
		} else {
			logger.Info("Metrics server started", "addr", cfg.Observability.Metrics.Addr)
			defer metricsServer.Stop()
		}
	}

	if cfg.Observability.Health.Enabled {
		checker := health.NewChecker(banner.Version)
		checker.RegisterCheck("storage", health.StorageCheck(health.WritableDir(cfg.DataDir)))
		checker.RegisterCheck("accepting", health.AcceptingCheck(func() bool {
			select {
			case <-coord.Done():
				return false
			default:
				return true
			}
		}))
		checker.RegisterCheck("disk", health.DiskCheck(95, health.DiskUsage(cfg.DataDir)))

		healthServer := health.NewGRPCServer(&cfg.Observability.Health, checker)
		if err := healthServer.Start(); err != nil {
			logger.Error("Failed to start health server", "error", err)
		} else {
			logger.Info("Health server started", "addr", cfg.Observability.Health.Addr)
			coord.OnSignal(healthServer.Shutdown)
			defer healthServer.Stop()
		}
	}

	if cfg.Discovery.Enabled {
		port := 0
		if tcp, ok := srv.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		adv, err := discovery.Advertise(discovery.Config{
			NodeID:  cfg.NodeID,
			Version: banner.Version,
			Service: cfg.Discovery.Service,
			Domain:  cfg.Discovery.Domain,
			Port:    port,
		})
		if err != nil {
			logger.Error("Failed to start mDNS advertiser", "error", err)
		} else {
			coord.OnSignal(func() { adv.Shutdown() })
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Franz is ready", "addr", srv.Addr().String())
	return shutdownError(srv.Run(ctx), logger)
}

// flagOverrides holds command-line values that take precedence over the
// config file and environment. Zero values leave cfg untouched.
type flagOverrides struct {
	dataPath string
	bindAddr string
	jsonLogs bool
}

func (o flagOverrides) apply(cfg *config.Config) {
	if o.dataPath != "" {
		cfg.DataDir = o.dataPath
	}
	if o.bindAddr != "" {
		cfg.BindAddr = o.bindAddr
	}
	if o.jsonLogs {
		cfg.LogJSON = true
	}
}

// shutdownError logs a drain timeout as a warning and returns whatever else
// went wrong while the broker stopped.
func shutdownError(err error, logger *logging.Logger) error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var rest []error
		for _, e := range joined.Unwrap() {
			if e = shutdownError(e, logger); e != nil {
				rest = append(rest, e)
			}
		}
		return errors.Join(rest...)
	}
	if errors.Is(err, broker.ErrDrainTimeout) {
		logger.Warn("Shutdown drain timed out", "error", err)
		return nil
	}
	return err
}
