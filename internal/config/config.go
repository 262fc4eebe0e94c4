// Package config holds the framewire runtime configuration: defaults, the
// optional TOML file, environment overrides and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/1ureka/framewire/internal/stream"
	"github.com/1ureka/framewire/internal/transport"
	"github.com/1ureka/framewire/internal/util"
)

// Role represents which side of a connection the process plays.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Environment variables that override file values.
const (
	EnvTransport      = "FRAMEWIRE_TRANSPORT"
	EnvAddress        = "FRAMEWIRE_ADDRESS"
	EnvMetricsAddress = "FRAMEWIRE_METRICS_ADDRESS"
)

// Config stores every runtime parameter of a serve or dial run.
type Config struct {
	Role           Role
	Transport      transport.Kind
	Address        string        // listen address (server) or target (client)
	MetricsAddress string        // empty disables the metrics endpoint
	StatsInterval  time.Duration // period of the stats log line
	Debug          bool
	Name           string // client display name
	Stream         StreamConfig
}

// StreamConfig mirrors stream.Options in config-file terms.
type StreamConfig struct {
	ReceiveWindow int
	SendWindow    int
	OutboundQueue int
	InboundQueue  int
	Overflow      string
	Dispatch      string
	DrainInterval time.Duration // host loop period in queued mode
}

// Default returns the built-in configuration.
func Default(role Role) Config {
	cfg := Config{
		Role:          role,
		Transport:     transport.KindTCP,
		Address:       "127.0.0.1:7450",
		StatsInterval: util.DefaultStatsInterval,
		Name:          "anonymous",
		Stream: StreamConfig{
			ReceiveWindow: stream.DefaultWindowSize,
			SendWindow:    stream.DefaultWindowSize,
			OutboundQueue: stream.DefaultOutboundQueue,
			InboundQueue:  stream.DefaultInboundQueue,
			Overflow:      stream.OverflowBlock.String(),
			Dispatch:      stream.DispatchImmediate.String(),
			DrainInterval: 50 * time.Millisecond,
		},
	}
	if role == RoleClient {
		cfg.Stream.Dispatch = stream.DispatchQueued.String()
	}
	return cfg
}

type fileConfig struct {
	Transport      string     `toml:"transport"`
	Address        string     `toml:"address"`
	MetricsAddress string     `toml:"metrics_address"`
	StatsInterval  string     `toml:"stats_interval"`
	Debug          bool       `toml:"debug"`
	Name           string     `toml:"name"`
	Stream         fileStream `toml:"stream"`
}

type fileStream struct {
	ReceiveWindow int    `toml:"receive_window"`
	SendWindow    int    `toml:"send_window"`
	OutboundQueue int    `toml:"outbound_queue"`
	InboundQueue  int    `toml:"inbound_queue"`
	Overflow      string `toml:"overflow"`
	Dispatch      string `toml:"dispatch"`
	DrainInterval string `toml:"drain_interval"`
}

// Load returns the defaults for role overlaid with the file at path. An
// empty path skips the file.
func Load(path string, role Role) (Config, error) {
	cfg := Default(role)
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		util.LogWarning("config %s: unknown keys %v", path, undecoded)
	}

	if meta.IsDefined("transport") {
		kind, err := transport.ParseKind(raw.Transport)
		if err != nil {
			return Config{}, fmt.Errorf("parse transport: %w", err)
		}
		cfg.Transport = kind
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("metrics_address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.MetricsAddress)
	}
	if meta.IsDefined("stats_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.StatsInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse stats_interval: %w", err)
		}
		cfg.StatsInterval = d
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}

	s := &cfg.Stream
	if meta.IsDefined("stream", "receive_window") {
		s.ReceiveWindow = raw.Stream.ReceiveWindow
	}
	if meta.IsDefined("stream", "send_window") {
		s.SendWindow = raw.Stream.SendWindow
	}
	if meta.IsDefined("stream", "outbound_queue") {
		s.OutboundQueue = raw.Stream.OutboundQueue
	}
	if meta.IsDefined("stream", "inbound_queue") {
		s.InboundQueue = raw.Stream.InboundQueue
	}
	if meta.IsDefined("stream", "overflow") {
		s.Overflow = strings.TrimSpace(raw.Stream.Overflow)
	}
	if meta.IsDefined("stream", "dispatch") {
		s.Dispatch = strings.TrimSpace(raw.Stream.Dispatch)
	}
	if meta.IsDefined("stream", "drain_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Stream.DrainInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse stream.drain_interval: %w", err)
		}
		s.DrainInterval = d
	}

	return cfg, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvTransport); ok {
		kind, err := transport.ParseKind(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTransport, err)
		}
		c.Transport = kind
	}
	if v, ok := os.LookupEnv(EnvAddress); ok {
		c.Address = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvMetricsAddress); ok {
		c.MetricsAddress = strings.TrimSpace(v)
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Role != RoleServer && c.Role != RoleClient {
		return fmt.Errorf("config: unknown role %q", c.Role)
	}
	if _, err := transport.ParseKind(string(c.Transport)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Address == "" {
		return fmt.Errorf("config: address is required")
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("config: stats_interval must not be negative")
	}
	if c.Stream.DrainInterval <= 0 {
		return fmt.Errorf("config: stream.drain_interval must be positive")
	}
	opts, err := c.StreamOptions()
	if err != nil {
		return err
	}
	return opts.Validate()
}

// StreamOptions converts the stream section to stream.Options. Observer and
// Name are left for the caller.
func (c Config) StreamOptions() (stream.Options, error) {
	overflow, err := stream.ParseOverflow(c.Stream.Overflow)
	if err != nil {
		return stream.Options{}, fmt.Errorf("config: %w", err)
	}
	mode, err := stream.ParseDispatchMode(c.Stream.Dispatch)
	if err != nil {
		return stream.Options{}, fmt.Errorf("config: %w", err)
	}
	return stream.Options{
		ReceiveWindow: c.Stream.ReceiveWindow,
		SendWindow:    c.Stream.SendWindow,
		OutboundQueue: c.Stream.OutboundQueue,
		InboundQueue:  c.Stream.InboundQueue,
		Overflow:      overflow,
		Dispatch:      mode,
	}, nil
}
