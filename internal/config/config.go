// Package config loads uacp-server settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/backkem/uacp/pkg/message"
	"github.com/backkem/uacp/pkg/uacp"
	"github.com/pion/logging"
)

// DefaultListen is the registered OPC UA TCP port.
const DefaultListen = ":4840"

// Config is the server configuration.
type Config struct {
	// Listen is the TCP listen address. Empty disables TCP.
	Listen string

	// WebSocket is the WebSocket listen address. Empty disables it.
	WebSocket string

	// LogLevel is one of disable, error, warn, info, debug, trace.
	LogLevel string

	// Resync is the deframer recovery policy for every connection.
	Resync message.ResyncPolicy

	// Limits are offered to clients in the handshake.
	Limits uacp.Limits
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:   DefaultListen,
		LogLevel: "info",
		Resync:   message.ResyncDiscard,
		Limits:   uacp.DefaultLimits(),
	}
}

type fileConfig struct {
	Listen            string `toml:"listen"`
	WebSocket         string `toml:"websocket"`
	LogLevel          string `toml:"log_level"`
	Resync            string `toml:"resync"`
	ReceiveBufferSize uint32 `toml:"receive_buffer_size"`
	SendBufferSize    uint32 `toml:"send_buffer_size"`
	MaxMessageSize    uint32 `toml:"max_message_size"`
	MaxChunkCount     uint32 `toml:"max_chunk_count"`
}

// Load reads path on top of Default. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return apply(Default(), raw, meta)
}

// Parse is Load for an in-memory document.
func Parse(doc string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(doc, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(Default(), raw, meta)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("websocket") {
		cfg.WebSocket = strings.TrimSpace(raw.WebSocket)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("resync") {
		p, err := ParseResync(raw.Resync)
		if err != nil {
			return Config{}, err
		}
		cfg.Resync = p
	}
	if meta.IsDefined("receive_buffer_size") {
		cfg.Limits.ReceiveBufferSize = raw.ReceiveBufferSize
	}
	if meta.IsDefined("send_buffer_size") {
		cfg.Limits.SendBufferSize = raw.SendBufferSize
	}
	if meta.IsDefined("max_message_size") {
		cfg.Limits.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("max_chunk_count") {
		cfg.Limits.MaxChunkCount = raw.MaxChunkCount
	}
	return cfg, nil
}

// Validate checks that the configuration can start a server.
func (c Config) Validate() error {
	if c.Listen == "" && c.WebSocket == "" {
		return errors.New("config: no listener enabled")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseResync parses a resync policy name.
func ParseResync(s string) (message.ResyncPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "discard", "":
		return message.ResyncDiscard, nil
	case "scan":
		return message.ResyncScan, nil
	default:
		return 0, fmt.Errorf("config: unknown resync policy %q", s)
	}
}

// ParseLogLevel parses a pion log level name.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disable", "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
}

// LoggerFactory builds a pion logger factory at the configured level.
func (c Config) LoggerFactory() logging.LoggerFactory {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = logging.LogLevelInfo
	}
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = level
	return factory
}
