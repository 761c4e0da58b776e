// Package testutil provides in-memory fakes and small configurations for
// ringkit tests.
//
// MockSink - An output.Sink that records every delivery per channel:
//   - Thread-safe for concurrent flushes
//   - Fail(n, err) makes the next n deliveries return err
//   - Attempts counts every delivery, failed or not
//
// MockPublisher - The NATS publish surface used by the NATS sink, without a
// server:
//   - Stores published payloads per subject
//   - Injectable publish and flush errors
//
// SmallRuntime - Runtime and flush settings small enough that a handful of
// writes wraps a channel and a flush retries within milliseconds.
//
// Example:
//
//	sink := &testutil.MockSink{}
//	rc, fc := testutil.SmallRuntime()
//	rt, err := service.New(rc, fc, service.WithSink(sink))
package testutil
