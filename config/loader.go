package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/ringkit/errors"
)

// DefaultEnvPrefix prefixes every environment override, e.g. RINGKIT_SINK_URL.
const DefaultEnvPrefix = "RINGKIT"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		getenv:    os.Getenv,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load starts from Default, applies each layer and then the environment.
// Fields a layer does not mention keep their previous value.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) applyFile(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return errors.WrapInvalid(err, "Loader", "Load", "read "+path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && err != io.EOF {
			return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
				"Loader", "Load", "parse "+path)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return errors.WrapInvalid(err, "Loader", "Load", "parse "+path)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
				"Loader", "Load", "parse "+path)
		}
	}
	return nil
}

// applyEnvOverrides applies PREFIX_SECTION_FIELD environment variables.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"RUNTIME_NAME":          &cfg.Runtime.Name,
		"RUNTIME_INGEST_POLICY": &cfg.Runtime.IngestPolicy,
		"METRICS_PATH":          &cfg.Metrics.Path,
		"SINK_TYPE":             &cfg.Sink.Type,
		"SINK_PATH":             &cfg.Sink.Path,
		"SINK_URL":              &cfg.Sink.URL,
		"SINK_SUBJECT":          &cfg.Sink.Subject,
		"UDP_BIND":              &cfg.UDP.Bind,
	}
	ints := map[string]*int{
		"RUNTIME_CHANNELS":      &cfg.Runtime.Channels,
		"RUNTIME_CHANNEL_SIZE":  &cfg.Runtime.ChannelSize,
		"RUNTIME_BUFFERS":       &cfg.Runtime.Buffers,
		"RUNTIME_BUFFER_SIZE":   &cfg.Runtime.BufferSize,
		"RUNTIME_MAILBOX_DEPTH": &cfg.Runtime.MailboxDepth,
		"FLUSH_MAX_RETRIES":     &cfg.Flush.MaxRetries,
		"METRICS_PORT":          &cfg.Metrics.Port,
		"GATEWAY_PORT":          &cfg.Gateway.Port,
		"UDP_PORT":              &cfg.UDP.Port,
		"UDP_CHANNEL":           &cfg.UDP.Channel,
	}
	durations := map[string]*Duration{
		"FLUSH_INTERVAL": &cfg.Flush.Interval,
		"FLUSH_TIMEOUT":  &cfg.Flush.Timeout,
	}
	bools := map[string]*bool{
		"METRICS_ENABLED": &cfg.Metrics.Enabled,
		"GATEWAY_ENABLED": &cfg.Gateway.Enabled,
		"UDP_ENABLED":     &cfg.UDP.Enabled,
	}

	lookup := func(suffix string) (string, string, error) {
		key := l.envPrefix + "_" + suffix
		val := l.getenv(key)
		return key, val, validateEnvVar(key, val)
	}
	bad := func(key, val string, err error) error {
		return errors.WrapInvalid(fmt.Errorf("%w: %s=%q: %w", errors.ErrInvalidConfig, key, val, err),
			"Loader", "applyEnvOverrides", "apply "+key)
	}

	for suffix, dst := range strs {
		key, val, err := lookup(suffix)
		if err != nil {
			return bad(key, val, err)
		}
		if val != "" {
			*dst = val
		}
	}
	for suffix, dst := range ints {
		key, val, err := lookup(suffix)
		if err != nil || val == "" {
			if err != nil {
				return bad(key, val, err)
			}
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return bad(key, val, err)
		}
		*dst = n
	}
	for suffix, dst := range durations {
		key, val, err := lookup(suffix)
		if err != nil || val == "" {
			if err != nil {
				return bad(key, val, err)
			}
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return bad(key, val, err)
		}
		*dst = Duration(d)
	}
	for suffix, dst := range bools {
		key, val, err := lookup(suffix)
		if err != nil || val == "" {
			if err != nil {
				return bad(key, val, err)
			}
			continue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return bad(key, val, err)
		}
		*dst = b
	}
	return nil
}

// SaveToFile writes the configuration as JSON or YAML depending on the
// file extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "encode config")
	}
	return safeWriteFile(path, data)
}
