package ipc

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/metric"
)

func TestByteBufLittleEndian(t *testing.T) {
	b := NewByteBuf(16)

	require.NoError(t, b.Wr64(0, 0x0807060504030201))
	got := make([]byte, 8)
	require.NoError(t, b.CopyTo(0, got))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)

	v16, err := b.Rd16(1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), v16)

	v32, err := b.Rd32(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x08070605), v32)

	require.NoError(t, b.Wr32(8, 0xdeadbeef))
	require.NoError(t, b.Wr16(12, 0xcafe))
	require.NoError(t, b.Wr8(14, 0x7f))

	v8, err := b.Rd8(14)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x7f), v8)
	v64, err := b.Rd64(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x007fcafedeadbeef), v64)

	b.Zero()
	v64, err = b.Rd64(0)
	require.NoError(t, err)
	assert.Zero(t, v64)
}

func TestByteBufBounds(t *testing.T) {
	b := NewByteBuf(8)

	tests := []struct {
		name string
		err  error
	}{
		{"Rd8 at len", func() error { _, err := b.Rd8(8); return err }()},
		{"Rd16 straddles end", func() error { _, err := b.Rd16(7); return err }()},
		{"Rd32 negative", func() error { _, err := b.Rd32(-1); return err }()},
		{"Rd64 past end", func() error { _, err := b.Rd64(1); return err }()},
		{"Wr8 past end", b.Wr8(9, 1)},
		{"Wr16 straddles", b.Wr16(7, 1)},
		{"Wr32 straddles", b.Wr32(5, 1)},
		{"Wr64 past end", b.Wr64(4, 1)},
		{"CopyTo too long", b.CopyTo(0, make([]byte, 9))},
		{"CopyFrom offset", b.CopyFrom(6, []byte{1, 2, 3})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			assert.ErrorIs(t, tt.err, errors.ErrIndexOutOfRange)
			assert.True(t, errors.IsInvalid(tt.err))
		})
	}

	// edges are fine
	assert.NoError(t, b.Wr64(0, 1))
	assert.NoError(t, b.Wr8(7, 1))
	assert.NoError(t, b.CopyFrom(8, nil))
}

func TestPool(t *testing.T) {
	p := NewPool(4, 32)
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, 32, p.BufSize())

	require.NoError(t, p.Write(2, 4, []byte("ping")))
	got, err := p.Read(2, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))

	// slots are independent
	got, err = p.Read(1, 4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, got)

	_, err = p.Read(4, 0, 1)
	assert.ErrorIs(t, err, errors.ErrSlotNotFound)
	assert.ErrorIs(t, p.Write(-1, 0, nil), errors.ErrSlotNotFound)
	assert.ErrorIs(t, p.Write(0, 30, []byte("xyz")), errors.ErrIndexOutOfRange)
}

func TestPoolMinimumOneSlot(t *testing.T) {
	assert.Equal(t, 1, NewPool(0, 8).Len())
}

func TestMailboxRoundTrip(t *testing.T) {
	pool := NewPool(2, 16)
	mb, err := NewMailbox(pool, 4)
	require.NoError(t, err)
	defer mb.Close()

	require.NoError(t, pool.Write(0, 0, []byte("hello")))
	req, err := mb.Submit(OpRead, 0, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), req.ID)

	n, err := mb.Serve(func(f Frame, b *ByteBuf) error {
		// upper-case the payload in place
		p := make([]byte, f.Len)
		if err := b.CopyTo(f.Off, p); err != nil {
			return err
		}
		for i := range p {
			p[i] -= 'a' - 'A'
		}
		return b.CopyFrom(f.Off, p)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp, ok := mb.PollResponse()
	require.True(t, ok)
	assert.Equal(t, req.ID, resp.ID)
	assert.Equal(t, StatusOK, resp.Status)

	got, err := pool.Read(0, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(got))

	_, ok = mb.PollResponse()
	assert.False(t, ok)
}

func TestMailboxSubmitValidation(t *testing.T) {
	mb, err := NewMailbox(NewPool(2, 8), 2)
	require.NoError(t, err)

	_, err = mb.Submit(OpWrite, 2, 0, 1)
	assert.ErrorIs(t, err, errors.ErrSlotNotFound)
	_, err = mb.Submit(OpWrite, 0, 4, 5)
	assert.ErrorIs(t, err, errors.ErrIndexOutOfRange)
	_, err = mb.Submit(OpWrite, 0, -1, 1)
	assert.ErrorIs(t, err, errors.ErrIndexOutOfRange)

	reqs, resps := mb.Pending()
	assert.Zero(t, reqs)
	assert.Zero(t, resps)
}

func TestMailboxRejectsWhenFull(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	mb, err := NewMailbox(NewPool(1, 8), 2, WithMailboxMetrics(registry, "mb"))
	require.NoError(t, err)

	_, err = mb.Submit(OpNoop, 0, 0, 0)
	require.NoError(t, err)
	_, err = mb.Submit(OpNoop, 0, 0, 0)
	require.NoError(t, err)

	_, err = mb.Submit(OpNoop, 0, 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCapacityExceeded)
	assert.True(t, errors.IsTransient(err))

	core := registry.CoreMetrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(core.MailboxDepth.WithLabelValues("requests")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.MailboxRejects.WithLabelValues("requests")))

	// draining makes room again
	_, ok := mb.NextRequest()
	require.True(t, ok)
	_, err = mb.Submit(OpNoop, 0, 0, 0)
	assert.NoError(t, err)
}

func TestMailboxServeStopsWhenResponsesFull(t *testing.T) {
	mb, err := NewMailbox(NewPool(1, 8), 2)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := mb.Submit(OpNoop, 0, 0, 0)
		require.NoError(t, err)
	}
	n, err := mb.Serve(func(Frame, *ByteBuf) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = mb.Submit(OpNoop, 0, 0, 0)
	require.NoError(t, err)
	n, err = mb.Serve(func(Frame, *ByteBuf) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)

	reqs, resps := mb.Pending()
	assert.Equal(t, 1, reqs)
	assert.Equal(t, 2, resps)
}

func TestMailboxHandlerError(t *testing.T) {
	mb, err := NewMailbox(NewPool(1, 8), 2)
	require.NoError(t, err)

	_, err = mb.Submit(OpWrite, 0, 0, 8)
	require.NoError(t, err)
	_, err = mb.Serve(func(Frame, *ByteBuf) error { return fmt.Errorf("device busy") })
	require.NoError(t, err)

	resp, ok := mb.PollResponse()
	require.True(t, ok)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, OpWrite, resp.Op)
}

func TestMailboxConcurrentClients(t *testing.T) {
	const clients, each = 4, 50
	mb, err := NewMailbox(NewPool(clients, 8), clients*each)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := mb.Submit(OpWrite, c, 0, 8)
				assert.NoError(t, err)
			}
		}(c)
	}
	wg.Wait()

	perSlot := make(map[int]int)
	n, err := mb.Serve(func(f Frame, b *ByteBuf) error {
		perSlot[f.Slot]++
		return b.Wr64(0, uint64(perSlot[f.Slot]))
	})
	require.NoError(t, err)
	assert.Equal(t, clients*each, n)
	for c := 0; c < clients; c++ {
		assert.Equal(t, each, perSlot[c])
	}

	seen := make(map[uint64]bool)
	for {
		resp, ok := mb.PollResponse()
		if !ok {
			break
		}
		assert.False(t, seen[resp.ID])
		seen[resp.ID] = true
	}
	assert.Len(t, seen, clients*each)
}

func TestMailboxClosed(t *testing.T) {
	mb, err := NewMailbox(NewPool(1, 8), 2)
	require.NoError(t, err)
	require.NoError(t, mb.Close())

	_, err = mb.Submit(OpNoop, 0, 0, 0)
	assert.ErrorIs(t, err, errors.ErrBufferClosed)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "read", OpRead.String())
	assert.Equal(t, "op(9)", Op(9).String())
}
