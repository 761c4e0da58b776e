package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/pkg/buffer"
)

// Sink types
const (
	SinkStdout  = "stdout"
	SinkFile    = "file"
	SinkNATS    = "nats"
	SinkHTTP    = "http"
	SinkDiscard = "discard"
)

// Config represents the complete ringkit configuration
type Config struct {
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Flush   FlushConfig   `json:"flush" yaml:"flush"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Sink    SinkConfig    `json:"sink" yaml:"sink"`
	UDP     UDPConfig     `json:"udp" yaml:"udp"`
}

// RuntimeConfig sizes the log channels, the IPC pool and the ingest queue.
// Every size is fixed for the life of a runtime.
type RuntimeConfig struct {
	Name         string `json:"name" yaml:"name"`
	Channels     int    `json:"channels" yaml:"channels"`           // number of log channels
	ChannelSize  int    `json:"channel_size" yaml:"channel_size"`   // bytes per channel
	Buffers      int    `json:"buffers" yaml:"buffers"`             // IPC pool slots
	BufferSize   int    `json:"buffer_size" yaml:"buffer_size"`     // bytes per slot
	MailboxDepth int    `json:"mailbox_depth" yaml:"mailbox_depth"` // frames per mailbox queue

	IngestQueue  int    `json:"ingest_queue" yaml:"ingest_queue"`
	IngestPolicy string `json:"ingest_policy" yaml:"ingest_policy"` // drop_oldest, drop_newest, block, reject

	// EvictionWarnRate limits "channel overwrote unflushed bytes" warnings
	// per second; zero disables them.
	EvictionWarnRate float64 `json:"eviction_warn_rate" yaml:"eviction_warn_rate"`
}

// FlushConfig controls delivery of channel contents to the sink.
type FlushConfig struct {
	Interval     Duration `json:"interval" yaml:"interval"`
	Timeout      Duration `json:"timeout" yaml:"timeout"`
	MaxRetries   int      `json:"max_retries" yaml:"max_retries"`
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay     Duration `json:"max_delay" yaml:"max_delay"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// GatewayConfig controls the HTTP/websocket gateway.
type GatewayConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	Port       int  `json:"port" yaml:"port"`
	TailBuffer int  `json:"tail_buffer" yaml:"tail_buffer"` // chunks queued per tail subscriber
}

// SinkConfig selects where flushed channel contents go.
type SinkConfig struct {
	Type    string `json:"type" yaml:"type"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`       // file sink
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`         // nats server or http endpoint
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"` // nats subject prefix
}

// UDPConfig controls the datagram listener that feeds a log channel.
type UDPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Bind    string `json:"bind" yaml:"bind"`
	Port    int    `json:"port" yaml:"port"`
	Channel int    `json:"channel" yaml:"channel"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Name:             "ringkit",
			Channels:         4,
			ChannelSize:      64 << 10,
			Buffers:          8,
			BufferSize:       4096,
			MailboxDepth:     32,
			IngestQueue:      1024,
			IngestPolicy:     "drop_oldest",
			EvictionWarnRate: 1,
		},
		Flush: FlushConfig{
			Interval:     Duration(5 * time.Second),
			Timeout:      Duration(10 * time.Second),
			MaxRetries:   3,
			InitialDelay: Duration(50 * time.Millisecond),
			MaxDelay:     Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Gateway: GatewayConfig{
			Enabled:    true,
			Port:       8080,
			TailBuffer: 64,
		},
		Sink: SinkConfig{
			Type:    SinkStdout,
			Subject: "ringkit.logs",
		},
		UDP: UDPConfig{
			Bind: "0.0.0.0",
			Port: 5514,
		},
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	r := c.Runtime
	check(r.Channels > 0, "runtime.channels must be positive, got %d", r.Channels)
	check(r.ChannelSize > 0, "runtime.channel_size must be positive, got %d", r.ChannelSize)
	check(r.Buffers > 0, "runtime.buffers must be positive, got %d", r.Buffers)
	check(r.BufferSize > 0, "runtime.buffer_size must be positive, got %d", r.BufferSize)
	check(r.MailboxDepth > 0, "runtime.mailbox_depth must be positive, got %d", r.MailboxDepth)
	check(r.IngestQueue > 0, "runtime.ingest_queue must be positive, got %d", r.IngestQueue)
	_, ok := buffer.ParseOverflowPolicy(r.IngestPolicy)
	check(ok, "runtime.ingest_policy %q is not one of drop_oldest, drop_newest, block, reject", r.IngestPolicy)
	check(r.EvictionWarnRate >= 0, "runtime.eviction_warn_rate must not be negative")

	f := c.Flush
	check(f.Interval > 0, "flush.interval must be positive")
	check(f.Timeout >= 0, "flush.timeout must not be negative")
	check(f.MaxRetries >= 0, "flush.max_retries must not be negative")
	check(f.InitialDelay >= 0 && f.MaxDelay >= f.InitialDelay,
		"flush delays must satisfy 0 <= initial_delay <= max_delay")

	if c.Metrics.Enabled {
		check(validPort(c.Metrics.Port), "metrics.port %d out of range", c.Metrics.Port)
		check(strings.HasPrefix(c.Metrics.Path, "/"), "metrics.path must start with /")
	}
	if c.Gateway.Enabled {
		check(validPort(c.Gateway.Port), "gateway.port %d out of range", c.Gateway.Port)
		check(c.Gateway.TailBuffer > 0, "gateway.tail_buffer must be positive")
	}
	if c.Metrics.Enabled && c.Gateway.Enabled && c.Metrics.Port != 0 {
		check(c.Metrics.Port != c.Gateway.Port, "metrics.port and gateway.port are both %d", c.Gateway.Port)
	}

	if c.UDP.Enabled {
		check(validPort(c.UDP.Port), "udp.port %d out of range", c.UDP.Port)
		check(c.UDP.Channel >= 0 && c.UDP.Channel < r.Channels,
			"udp.channel %d is not one of the %d runtime channels", c.UDP.Channel, r.Channels)
	}

	switch c.Sink.Type {
	case SinkStdout, SinkDiscard:
	case SinkFile:
		check(c.Sink.Path != "", "sink.path is required for the file sink")
	case SinkNATS:
		check(c.Sink.URL != "", "sink.url is required for the nats sink")
		check(validSubject(c.Sink.Subject), "sink.subject %q is not a valid NATS subject", c.Sink.Subject)
	case SinkHTTP:
		u, err := url.Parse(c.Sink.URL)
		check(err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "",
			"sink.url %q is not an http(s) URL", c.Sink.URL)
	default:
		check(false, "sink.type %q is not one of stdout, file, nats, http, discard", c.Sink.Type)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(problems...)),
		"Config", "Validate", "validate configuration")
}

func validPort(p int) bool {
	return p >= 0 && p <= 65535
}

// validSubject accepts dot-separated tokens of letters, digits, dashes and
// underscores; wildcards are not allowed in a publish subject.
func validSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, tok := range strings.Split(s, ".") {
		if tok == "" {
			return false
		}
		for _, r := range tok {
			if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	copied := *c
	return &copied
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "replace config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg.Clone()
	return nil
}

// Duration is a time.Duration that reads and writes as a string such as
// "250ms". Plain numbers are taken as nanoseconds.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if parsed, err := time.ParseDuration(node.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(time.Duration(n))
	return nil
}
