package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360/ringkit/errors"
)

// ChannelHeader carries the channel name on every HTTP delivery.
const ChannelHeader = "X-Ringkit-Channel"

// HTTPSink POSTs each flushed channel to a collector endpoint.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink posts to url. A nil client gets a 30 second timeout.
func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPSink{url: url, client: client}
}

// Name returns the sink name used in metrics labels.
func (s *HTTPSink) Name() string { return "http" }

// Deliver sends one POST. Server errors and 429 are transient, other
// non-2xx responses are invalid and will not be retried.
func (s *HTTPSink) Deliver(ctx context.Context, channel string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return errors.WrapInvalid(err, "HTTPSink", "Deliver", "build request")
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set(ChannelHeader, channel)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "HTTPSink", "Deliver", "post "+channel)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.WrapTransient(fmt.Errorf("HTTP %d", resp.StatusCode), "HTTPSink", "Deliver", "post "+channel)
	default:
		return errors.WrapInvalid(fmt.Errorf("HTTP %d", resp.StatusCode), "HTTPSink", "Deliver", "post "+channel)
	}
}

// Close releases idle connections.
func (s *HTTPSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
