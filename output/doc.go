// Package output delivers flushed log channel contents to their destination.
//
// A Sink receives the bytes drained from one channel per Deliver call. The
// runtime retries a failed Deliver while the error is classified transient
// (see errors.IsTransient), so sinks classify what they return:
//
//   - WriterSink writes to stdout or an append-only file
//   - NATSSink publishes to <subject>.<channel> and flushes the connection
//   - HTTPSink POSTs the bytes with the channel name in X-Ringkit-Channel
//   - Discard drops everything, for benchmarks and tests
//
// Open builds the sink named by config.SinkConfig.
package output
