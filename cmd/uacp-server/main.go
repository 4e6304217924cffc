// uacp-server is a UACP endpoint that performs the connection handshake
// and opens SecurityPolicy None secure channels.
//
// Usage:
//
//	uacp-server [options]
//
// Options:
//
//	-config     TOML configuration file (default: none)
//	-listen     TCP listen address (default: ":4840", "" disables)
//	-ws         WebSocket listen address (default: disabled)
//	-log-level  disable, error, warn, info, debug or trace (default: info)
//	-resync     discard or scan (default: discard)
//
// Flags given on the command line override the configuration file.
//
// Example:
//
//	uacp-server -listen :4840 -ws :4843 -log-level debug
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/backkem/uacp/internal/config"
	"github.com/backkem/uacp/internal/server"
)

func main() {
	defaults := config.Default()

	configPath := flag.String("config", "", "TOML configuration file")
	listen := flag.String("listen", defaults.Listen, "TCP listen address (empty disables TCP)")
	ws := flag.String("ws", defaults.WebSocket, "WebSocket listen address (empty disables WebSocket)")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level: disable, error, warn, info, debug, trace")
	resync := flag.String("resync", defaults.Resync.String(), "Deframer recovery policy: discard or scan")
	flag.Parse()

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "ws":
			cfg.WebSocket = *ws
		case "log-level":
			cfg.LogLevel = *logLevel
		case "resync":
			p, err := config.ParseResync(*resync)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Resync = p
		}
	})
	if flagErr != nil {
		log.Fatalf("Invalid flag: %v", flagErr)
	}

	s, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	<-ctx.Done()

	log.Println("Shutting down...")
	if err := s.Stop(); err != nil {
		log.Fatalf("Stop error: %v", err)
	}
}
