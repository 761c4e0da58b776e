package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the runtime-wide ring metrics. Per-buffer metrics are
// registered separately by pkg/buffer.
type Metrics struct {
	// Log channels
	ChannelBytes        *prometheus.GaugeVec
	ChannelEvictedBytes *prometheus.CounterVec
	ChannelWrites       *prometheus.CounterVec

	// Flush to sinks
	FlushedBytes  *prometheus.CounterVec
	FlushErrors   *prometheus.CounterVec
	FlushDuration *prometheus.HistogramVec

	// IPC
	MailboxDepth   *prometheus.GaugeVec
	MailboxRejects *prometheus.CounterVec
}

// NewMetrics creates the core metric set. Nothing is registered yet.
func NewMetrics() *Metrics {
	return &Metrics{
		ChannelBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ringkit",
				Subsystem: "channel",
				Name:      "bytes",
				Help:      "Bytes currently held by a log channel",
			},
			[]string{"channel"},
		),
		ChannelEvictedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringkit",
				Subsystem: "channel",
				Name:      "evicted_bytes_total",
				Help:      "Bytes overwritten before they were flushed",
			},
			[]string{"channel"},
		),
		ChannelWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringkit",
				Subsystem: "channel",
				Name:      "writes_total",
				Help:      "Records written to a log channel",
			},
			[]string{"channel"},
		),
		FlushedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringkit",
				Subsystem: "flush",
				Name:      "bytes_total",
				Help:      "Bytes delivered to a sink",
			},
			[]string{"channel", "sink"},
		),
		FlushErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringkit",
				Subsystem: "flush",
				Name:      "errors_total",
				Help:      "Flushes that failed after retries",
			},
			[]string{"channel", "sink"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ringkit",
				Subsystem: "flush",
				Name:      "duration_seconds",
				Help:      "Time spent delivering one channel to a sink",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sink"},
		),
		MailboxDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ringkit",
				Subsystem: "mailbox",
				Name:      "depth",
				Help:      "Frames waiting in a mailbox queue",
			},
			[]string{"queue"},
		),
		MailboxRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ringkit",
				Subsystem: "mailbox",
				Name:      "rejects_total",
				Help:      "Frames refused because the queue was full",
			},
			[]string{"queue"},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ChannelBytes,
		c.ChannelEvictedBytes,
		c.ChannelWrites,
		c.FlushedBytes,
		c.FlushErrors,
		c.FlushDuration,
		c.MailboxDepth,
		c.MailboxRejects,
	}
}

// RecordChannelWrite counts one record, its evictions and the new fill level.
func (c *Metrics) RecordChannelWrite(channel string, held, evicted int) {
	c.ChannelWrites.WithLabelValues(channel).Inc()
	c.ChannelBytes.WithLabelValues(channel).Set(float64(held))
	if evicted > 0 {
		c.ChannelEvictedBytes.WithLabelValues(channel).Add(float64(evicted))
	}
}

// RecordChannelLevel sets the fill level of a channel.
func (c *Metrics) RecordChannelLevel(channel string, held int) {
	c.ChannelBytes.WithLabelValues(channel).Set(float64(held))
}

// RecordFlush records the outcome of delivering one channel to a sink.
func (c *Metrics) RecordFlush(channel, sink string, n int64, err error) {
	if err != nil {
		c.FlushErrors.WithLabelValues(channel, sink).Inc()
	}
	if n > 0 {
		c.FlushedBytes.WithLabelValues(channel, sink).Add(float64(n))
	}
}

// RecordFlushDuration observes the time a sink took for one channel.
func (c *Metrics) RecordFlushDuration(sink string, d time.Duration) {
	c.FlushDuration.WithLabelValues(sink).Observe(d.Seconds())
}

// RecordMailbox sets the depth of a mailbox queue and counts a rejection.
func (c *Metrics) RecordMailbox(queue string, depth int, rejected bool) {
	c.MailboxDepth.WithLabelValues(queue).Set(float64(depth))
	if rejected {
		c.MailboxRejects.WithLabelValues(queue).Inc()
	}
}
