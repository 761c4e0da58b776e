package logbuf

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ringkit/errors"
)

func TestChannelKeepsNewestRecords(t *testing.T) {
	ch := NewChannel("0", 16)

	for _, rec := range []string{"aaaa\n", "bbbb\n", "cccc\n", "dddd\n"} {
		n, err := ch.WriteString(rec)
		require.NoError(t, err)
		assert.Equal(t, len(rec), n)
	}

	// 20 bytes written into 16: only the four bytes needed were dropped
	assert.Equal(t, "\nbbbb\ncccc\ndddd\n", string(ch.Snapshot()))
	st := ch.Stats()
	assert.Equal(t, 16, st.Len)
	assert.Equal(t, 16, st.Cap)
	assert.Equal(t, uint64(4), st.Records)
	assert.Equal(t, uint64(4), st.Evicted)
}

func TestChannelOversizedRecord(t *testing.T) {
	ch := NewChannel("0", 4)
	ch.WriteString("xy")
	ch.WriteString("0123456789")
	assert.Equal(t, "6789", string(ch.Snapshot()))
	assert.Equal(t, uint64(8), ch.Stats().Evicted)
}

func TestChannelDrain(t *testing.T) {
	ch := NewChannel("0", 8)
	ch.Printf("n=%d;", 42)

	assert.Equal(t, "n=42;", string(ch.Drain()))
	assert.Empty(t, ch.Snapshot())
	assert.Empty(t, ch.Drain())
}

func TestChannelWriteToAcrossWrap(t *testing.T) {
	ch := NewChannel("0", 8)
	ch.WriteString("123456")
	ch.WriteString("789")
	require.True(t, ch.Stats().Wrapping)

	var out bytes.Buffer
	n, err := ch.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "23456789", out.String())
	assert.Equal(t, 0, ch.Stats().Len)
}

type failingWriter struct{ accept int }

func (w *failingWriter) Write(p []byte) (int, error) {
	n := min(w.accept, len(p))
	w.accept -= n
	return n, fmt.Errorf("connection reset")
}

func TestChannelWriteToKeepsUnsent(t *testing.T) {
	ch := NewChannel("0", 8)
	ch.WriteString("abcdef")

	_, err := ch.WriteTo(&failingWriter{accept: 2})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, "cdef", string(ch.Snapshot()))
}

func TestChannelLogger(t *testing.T) {
	ch := NewChannel("0", 4096)
	logger := ch.Logger(slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("hello", "k", 1)
	logger.Warn("careful")

	out := string(ch.Snapshot())
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=hello k=1")
	assert.Contains(t, out, "level=WARN msg=careful")
	assert.Equal(t, uint64(2), ch.Stats().Records)
}

func TestChannelLoggerKeepsLatestRecords(t *testing.T) {
	ch := NewChannel("0", 256)
	logger := ch.Logger(slog.LevelInfo)
	for i := 0; i < 50; i++ {
		logger.Info("record", "i", i)
	}

	out := string(ch.Snapshot())
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "i=49"))
	// every surviving line is complete except possibly the first one
	for _, line := range lines[1:] {
		assert.True(t, strings.HasPrefix(line, "time="), line)
	}
}

func TestChannelConcurrentWriters(t *testing.T) {
	ch := NewChannel("0", 64)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				ch.WriteString("abcdefgh")
			}
		}()
	}
	wg.Wait()

	st := ch.Stats()
	assert.Equal(t, uint64(800), st.Records)
	assert.Equal(t, 64, st.Len)
	assert.Equal(t, uint64(800*8-64), st.Evicted)
	// records are 8 bytes and the capacity a multiple of 8, so slots align
	assert.Equal(t, strings.Repeat("abcdefgh", 8), string(ch.Snapshot()))
}

func TestSet(t *testing.T) {
	var observed []string
	s := NewSet(3, 32,
		WithNames(func(i int) string { return fmt.Sprintf("ch%d", i) }),
		WithObserver(func(name string, held, evicted int) {
			observed = append(observed, fmt.Sprintf("%s:%d:%d", name, held, evicted))
		}),
	)
	require.Equal(t, 3, s.Len())

	ch, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "ch1", ch.Name())
	ch.WriteString("hi")

	_, err = s.Get(3)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrChannelNotFound)
	assert.True(t, errors.IsInvalid(err))
	_, err = s.Get(-1)
	assert.ErrorIs(t, err, errors.ErrChannelNotFound)

	found, ok := s.Lookup("ch2")
	require.True(t, ok)
	assert.Equal(t, "ch2", found.Name())
	_, ok = s.Lookup("nope")
	assert.False(t, ok)

	var names []string
	for i, c := range s.All() {
		names = append(names, fmt.Sprintf("%d=%s", i, c.Name()))
	}
	assert.Equal(t, []string{"0=ch0", "1=ch1", "2=ch2"}, names)

	stats := s.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, 2, stats[1].Len)
	assert.Equal(t, []string{"ch1:2:0"}, observed)
}

func TestSetDefaults(t *testing.T) {
	s := NewSet(0, 8)
	assert.Equal(t, 1, s.Len())
	ch, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "0", ch.Name())
}
