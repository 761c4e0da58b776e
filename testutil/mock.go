package testutil

import (
	"context"
	"strings"
	"sync"
)

// MockSink records deliveries in memory.
type MockSink struct {
	mu       sync.Mutex
	got      map[string][]string
	failNext int
	failWith error
	attempts int
}

// Name returns "mem".
func (s *MockSink) Name() string { return "mem" }

// Deliver records data for channel unless a failure is pending.
func (s *MockSink) Deliver(_ context.Context, channel string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failNext > 0 {
		s.failNext--
		return s.failWith
	}
	if s.got == nil {
		s.got = make(map[string][]string)
	}
	s.got[channel] = append(s.got[channel], string(data))
	return nil
}

// Close is a no-op.
func (s *MockSink) Close() error { return nil }

// Joined returns everything delivered for channel, concatenated.
func (s *MockSink) Joined(channel string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.got[channel], "")
}

// Fail makes the next n deliveries return err and resets Attempts.
func (s *MockSink) Fail(n int, err error) {
	s.mu.Lock()
	s.failNext, s.failWith, s.attempts = n, err, 0
	s.mu.Unlock()
}

// Attempts returns the number of Deliver calls since the last Fail.
func (s *MockSink) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}
