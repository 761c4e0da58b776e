// Package config loads, validates and hot-reloads ringkit configuration.
//
// A Config is built in layers: Default values first, then each file added to
// the Loader (JSON or YAML, chosen by extension), then RINGKIT_* environment
// variables. Unknown keys in a file are an error.
//
//	loader := config.NewLoader()
//	loader.AddLayer("ringkit.yaml")
//	loader.EnableValidation(true)
//	cfg, err := loader.Load()
//
// Sizes under Runtime are fixed once a runtime is built. Flush settings can
// change at runtime: a Watcher reloads the file through fsnotify, publishes
// it into a SafeConfig and calls its OnChange hooks.
//
//	safe := config.NewSafeConfig(cfg)
//	w := config.NewWatcher("ringkit.yaml", safe, logger)
//	w.OnChange(func(c *config.Config) { rt.SetFlushInterval(c.Flush.Interval.D()) })
//	go w.Run(ctx)
//
// Validation failures are classified invalid and wrap errors.ErrInvalidConfig.
package config
