package testutil

import (
	"context"
	"sync"
)

// MockPublisher stands in for a NATS connection.
type MockPublisher struct {
	mu        sync.Mutex
	published map[string][]string
	flushes   int

	PublishErr error
	FlushErr   error
}

// Publish stores data under subject, or returns PublishErr.
func (p *MockPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PublishErr != nil {
		return p.PublishErr
	}
	if p.published == nil {
		p.published = make(map[string][]string)
	}
	p.published[subject] = append(p.published[subject], string(data))
	return nil
}

// FlushWithContext counts the flush and returns FlushErr.
func (p *MockPublisher) FlushWithContext(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return p.FlushErr
}

// Published returns the payloads published to subject.
func (p *MockPublisher) Published(subject string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published[subject]...)
}

// Flushes returns the number of flushes.
func (p *MockPublisher) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}
