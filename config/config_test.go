package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ringkit/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func noEnv(string) string { return "" }

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Runtime.Channels)
	assert.Equal(t, 5*time.Second, cfg.Flush.Interval.D())
	assert.Equal(t, SinkStdout, cfg.Sink.Type)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeFile(t, "ringkit.json", `{
		"runtime": {"name": "edge", "channels": 2, "channel_size": 1024},
		"flush": {"interval": "250ms", "max_retries": 5},
		"sink": {"type": "file", "path": "/var/log/ringkit.log"}
	}`)

	loader := NewLoader()
	loader.getenv = noEnv
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "edge", cfg.Runtime.Name)
	assert.Equal(t, 2, cfg.Runtime.Channels)
	assert.Equal(t, 1024, cfg.Runtime.ChannelSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Flush.Interval.D())
	assert.Equal(t, 5, cfg.Flush.MaxRetries)
	assert.Equal(t, SinkFile, cfg.Sink.Type)

	// untouched fields keep their defaults
	assert.Equal(t, Default().Runtime.BufferSize, cfg.Runtime.BufferSize)
	assert.Equal(t, Default().Flush.Timeout, cfg.Flush.Timeout)
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "ringkit.yaml", `
runtime:
  channels: 3
  ingest_policy: reject
flush:
  interval: 2s
  initial_delay: 1000000
metrics:
  enabled: false
sink:
  type: nats
  url: nats://localhost:4222
  subject: edge.logs
`)

	loader := NewLoader()
	loader.getenv = noEnv
	loader.EnableValidation(true)
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Runtime.Channels)
	assert.Equal(t, "reject", cfg.Runtime.IngestPolicy)
	assert.Equal(t, 2*time.Second, cfg.Flush.Interval.D())
	assert.Equal(t, time.Millisecond, cfg.Flush.InitialDelay.D())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "edge.logs", cfg.Sink.Subject)
}

func TestLoader_EmptyYAMLKeepsDefaults(t *testing.T) {
	path := writeFile(t, "empty.yml", "")
	loader := NewLoader()
	loader.getenv = noEnv
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_UnknownField(t *testing.T) {
	for name, content := range map[string]string{
		"bad.json": `{"runtime": {"chanels": 2}}`,
		"bad.yaml": "runtime:\n  chanels: 2\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, name, content)
			loader := NewLoader()
			loader.getenv = noEnv
			_, err := loader.LoadFile(path)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestLoader_Layers(t *testing.T) {
	base := writeFile(t, "base.json", `{"runtime": {"channels": 8, "name": "base"}}`)
	override := writeFile(t, "prod.yaml", "runtime:\n  name: prod\n")

	loader := NewLoader()
	loader.getenv = noEnv
	loader.AddLayer(base)
	loader.AddLayer(override)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Runtime.Channels)
	assert.Equal(t, "prod", cfg.Runtime.Name)
}

func TestLoader_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"RINGKIT_RUNTIME_CHANNELS": "6",
		"RINGKIT_FLUSH_INTERVAL":   "750ms",
		"RINGKIT_METRICS_ENABLED":  "false",
		"RINGKIT_SINK_TYPE":        "discard",
	}
	loader := NewLoader()
	loader.getenv = func(k string) string { return env[k] }
	loader.EnableValidation(true)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Runtime.Channels)
	assert.Equal(t, 750*time.Millisecond, cfg.Flush.Interval.D())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, SinkDiscard, cfg.Sink.Type)
}

func TestLoader_BadEnvOverride(t *testing.T) {
	t.Setenv("RINGKIT_RUNTIME_BUFFERS", "many")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "RINGKIT_RUNTIME_BUFFERS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero channels", func(c *Config) { c.Runtime.Channels = 0 }, "runtime.channels"},
		{"bad policy", func(c *Config) { c.Runtime.IngestPolicy = "spill" }, "ingest_policy"},
		{"zero interval", func(c *Config) { c.Flush.Interval = 0 }, "flush.interval"},
		{"delays inverted", func(c *Config) { c.Flush.MaxDelay = 0 }, "flush delays"},
		{"port clash", func(c *Config) { c.Gateway.Port = c.Metrics.Port }, "both"},
		{"file without path", func(c *Config) { c.Sink.Type = SinkFile }, "sink.path"},
		{"nats wildcard", func(c *Config) {
			c.Sink.Type = SinkNATS
			c.Sink.URL = "nats://localhost:4222"
			c.Sink.Subject = "logs.>"
		}, "sink.subject"},
		{"http without scheme", func(c *Config) {
			c.Sink.Type = SinkHTTP
			c.Sink.URL = "collector:8080/logs"
		}, "http(s) URL"},
		{"udp channel out of range", func(c *Config) {
			c.UDP.Enabled = true
			c.UDP.Channel = c.Runtime.Channels
		}, "udp.channel"},
		{"unknown sink", func(c *Config) { c.Sink.Type = "kafka" }, "sink.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Runtime.Channels = 0
	cfg.Runtime.Buffers = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime.channels")
	assert.Contains(t, err.Error(), "runtime.buffers")
}

func TestDurationJSON(t *testing.T) {
	var fc FlushConfig
	require.NoError(t, json.Unmarshal([]byte(`{"interval":"1m","timeout":1000}`), &fc))
	assert.Equal(t, time.Minute, fc.Interval.D())
	assert.Equal(t, time.Microsecond, fc.Timeout.D())

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"interval":"1m0s"`)

	assert.Error(t, json.Unmarshal([]byte(`{"interval":true}`), &fc))
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			cfg := Default()
			cfg.Runtime.Name = "saved"
			cfg.Flush.Interval = Duration(3 * time.Second)

			path := filepath.Join(t.TempDir(), "out"+ext)
			require.NoError(t, cfg.SaveToFile(path))

			loader := NewLoader()
			loader.getenv = noEnv
			loaded, err := loader.LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestSecurityChecks(t *testing.T) {
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath("../etc/ringkit.json"))
	assert.Error(t, validateConfigPath("ringkit.toml"))
	assert.NoError(t, validateConfigPath("conf/ringkit.YML"))

	assert.NoError(t, validateJSONDepth([]byte(`{"a":"[[[["}`)))
	assert.Error(t, validateJSONDepth([]byte(strings.Repeat("[", maxJSONDepth+1))))
	assert.Error(t, validateJSONDepth([]byte(`{"a":1}}`)))

	assert.Error(t, validateEnvVar("K", "a\x00b"))

	_, err := safeReadFile(t.TempDir() + "/missing.json")
	assert.Error(t, err)
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)

	got := sc.Get()
	got.Runtime.Name = "mutated"
	assert.Equal(t, "ringkit", sc.Get().Runtime.Name)

	bad := Default()
	bad.Runtime.Channels = 0
	assert.Error(t, sc.Update(bad))
	assert.Equal(t, 4, sc.Get().Runtime.Channels)

	assert.ErrorIs(t, sc.Update(nil), errors.ErrMissingConfig)

	good := Default()
	good.Flush.Interval = Duration(time.Second)
	require.NoError(t, sc.Update(good))
	assert.Equal(t, time.Second, sc.Get().Flush.Interval.D())
}

func TestWatcherReload(t *testing.T) {
	path := writeFile(t, "ringkit.yaml", "flush:\n  interval: 1s\n")
	sc := NewSafeConfig(nil)
	w := NewWatcher(path, sc, nil)
	w.loader.getenv = noEnv

	changed := make(chan time.Duration, 1)
	w.OnChange(func(c *Config) { changed <- c.Flush.Interval.D() })

	w.Reload()
	assert.Equal(t, time.Second, <-changed)

	require.NoError(t, os.WriteFile(path, []byte("flush:\n  interval: -1s\n"), 0600))
	w.Reload()
	assert.Equal(t, time.Second, sc.Get().Flush.Interval.D())

	reloads, failures := w.Stats()
	assert.Equal(t, 1, reloads)
	assert.Equal(t, 1, failures)
}

func TestWatcherRunPicksUpWrites(t *testing.T) {
	path := writeFile(t, "ringkit.json", `{"flush": {"interval": "1s"}}`)
	sc := NewSafeConfig(nil)
	w := NewWatcher(path, sc, nil)
	w.loader.getenv = noEnv
	w.SetDebounce(10 * time.Millisecond)

	changed := make(chan *Config, 4)
	w.OnChange(func(c *Config) { changed <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register before writing
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"flush": {"interval": "3s"}}`), 0600))

	select {
	case c := <-changed:
		assert.Equal(t, 3*time.Second, c.Flush.Interval.D())
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not reload")
	}

	cancel()
	require.NoError(t, <-done)
}
