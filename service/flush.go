package service

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/health"
	"github.com/c360/ringkit/pkg/logbuf"
	"github.com/c360/ringkit/pkg/retry"
)

// maxParallelFlush bounds how many channels are delivered at once.
const maxParallelFlush = 4

// Flush drains every channel and delivers the bytes to the sink, retrying
// transient failures with backoff. Bytes whose delivery failed are kept and
// sent ahead of newer bytes on the next flush, up to the channel capacity.
// Concurrent calls are serialised.
func (r *Runtime) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	fc := *r.flushCfg.Load()
	rc := errors.RetryConfig{
		MaxRetries:    fc.MaxRetries,
		InitialDelay:  fc.InitialDelay.D(),
		MaxDelay:      fc.MaxDelay.D(),
		BackoffFactor: 2,
	}.ToRetryConfig()

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(maxParallelFlush)

	for i, ch := range r.channels.All() {
		data := r.takePending(i, ch)
		if len(data) == 0 {
			continue
		}
		g.Go(func() error {
			if err := r.deliver(ctx, fc.Timeout.D(), rc, ch, data); err != nil {
				r.carry[i] = data
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	r.flushes.Add(1)
	if len(errs) > 0 {
		r.flushFails.Add(1)
		err := stderrors.Join(errs...)
		r.monitor.Update("sink", health.FromError("sink", err, ""))
		return err
	}
	r.monitor.Update("sink", health.NewHealthy("sink", "delivering to "+r.sink.Name()))
	return nil
}

// takePending joins bytes left over from a failed flush with the channel's
// current contents, keeping at most one channel's worth of the newest bytes.
func (r *Runtime) takePending(i int, ch *logbuf.Channel) []byte {
	fresh := ch.Drain()
	if r.core != nil {
		r.core.RecordChannelLevel(ch.Name(), 0)
	}
	old := r.carry[i]
	r.carry[i] = nil
	if len(old) == 0 {
		return fresh
	}

	data := append(old, fresh...)
	if limit := ch.Stats().Cap; len(data) > limit {
		lost := len(data) - limit
		data = data[lost:]
		r.logger.Warn("Dropped undelivered bytes", "channel", ch.Name(), "bytes", lost)
	}
	return data
}

func (r *Runtime) deliver(ctx context.Context, timeout time.Duration, rc retry.Config,
	ch *logbuf.Channel, data []byte) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := retry.Do(ctx, rc, func() error {
		err := r.sink.Deliver(ctx, ch.Name(), data)
		if err != nil && !errors.IsTransient(err) {
			return retry.NonRetryable(err)
		}
		return err
	})

	if r.core != nil {
		delivered := int64(len(data))
		if err != nil {
			delivered = 0
		}
		r.core.RecordFlush(ch.Name(), r.sink.Name(), delivered, err)
		r.core.RecordFlushDuration(r.sink.Name(), time.Since(start))
	}

	if err != nil {
		r.monitor.Update("channel/"+ch.Name(), health.NewDegraded("", "delivery failed, bytes held for retry"))
		return errors.Wrap(err, "Runtime", "Flush", "deliver channel "+ch.Name())
	}
	r.monitor.Update("channel/"+ch.Name(), health.NewHealthy("", "flushed"))
	return nil
}
