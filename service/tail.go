package service

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/pkg/logbuf"
)

// channelWriter writes records into a channel and fans them out to tails.
// A record larger than the channel is refused whole.
type channelWriter struct {
	ch       *logbuf.Channel
	idx      int
	tails    *broker
	rejected *atomic.Int64
}

func (w *channelWriter) Write(p []byte) (int, error) {
	if err := checkRecord(w.ch, len(p)); err != nil {
		w.rejected.Add(1)
		return 0, err
	}
	n, err := w.ch.Write(p)
	w.tails.publish(w.idx, p)
	return n, err
}

func checkRecord(ch *logbuf.Channel, n int) error {
	if n > ch.Cap() {
		return errors.WrapInvalid(errors.ErrFrameTooLarge, "Runtime", "Write",
			fmt.Sprintf("record of %d bytes exceeds channel %s capacity of %d", n, ch.Name(), ch.Cap()))
	}
	return nil
}

type subscriber struct {
	ch      chan []byte
	dropped atomic.Uint64
}

// broker delivers channel records to live subscribers without blocking the
// writer.
type broker struct {
	mu     sync.RWMutex
	subs   []map[*subscriber]struct{}
	buffer int
	closed bool
}

func newBroker(channels, buffer int) *broker {
	subs := make([]map[*subscriber]struct{}, max(channels, 1))
	for i := range subs {
		subs[i] = make(map[*subscriber]struct{})
	}
	return &broker{subs: subs, buffer: buffer}
}

func (b *broker) subscribe(idx int) (<-chan []byte, func()) {
	s := &subscriber{ch: make(chan []byte, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[idx][s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[idx][s]; ok {
				delete(b.subs[idx], s)
				close(s.ch)
			}
		})
	}
}

func (b *broker) publish(idx int, p []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.subs[idx]) == 0 {
		return
	}
	chunk := append([]byte(nil), p...)
	for s := range b.subs[idx] {
		select {
		case s.ch <- chunk:
		default:
			s.dropped.Add(1)
		}
	}
}

func (b *broker) subscribers(idx int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[idx])
}

func (b *broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			delete(set, s)
			close(s.ch)
		}
	}
}
