package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	Stdin           bool
	StdinChannel    int
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("RINGKIT_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: RINGKIT_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("RINGKIT_CONFIG", ""),
		"Path to a JSON or YAML configuration file (env: RINGKIT_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("RINGKIT_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: RINGKIT_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("RINGKIT_LOG_FORMAT", "json"),
		"Log format: json, text (env: RINGKIT_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("RINGKIT_DEBUG", false),
		"Enable debug mode (env: RINGKIT_DEBUG)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("RINGKIT_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: RINGKIT_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.Stdin, "stdin",
		getEnvBool("RINGKIT_STDIN", false),
		"Ingest newline-delimited records from stdin (env: RINGKIT_STDIN)")

	flag.IntVar(&cfg.StdinChannel, "stdin-channel",
		getEnvInt("RINGKIT_STDIN_CHANNEL", 0),
		"Log channel that receives stdin records (env: RINGKIT_STDIN_CHANNEL)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.StdinChannel < 0 {
		return fmt.Errorf("invalid stdin channel: %d", cfg.StdinChannel)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - fixed-capacity log channels and IPC buffers

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run with a config file
  %s --config=/etc/ringkit/ringkit.yaml

  # Pipe a program's output into channel 1
  myapp 2>&1 | %s --stdin --stdin-channel=1 --log-format=text

  # Override settings from the environment
  export RINGKIT_SINK_TYPE=nats
  export RINGKIT_SINK_URL=nats://localhost:4222
  %s

  # Validate configuration only
  %s --config=ringkit.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
