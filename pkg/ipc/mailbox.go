package ipc

import (
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/metric"
	"github.com/c360/ringkit/pkg/buffer"
)

// Op is the operation a request frame asks for.
type Op uint8

const (
	OpNoop Op = iota
	OpRead
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpNoop:
		return "noop"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Status is the outcome carried by a response frame.
type Status uint8

const (
	StatusOK Status = iota
	StatusError
)

// Frame describes one request or response. Payload bytes never travel in the
// frame; they live in pool slot Slot at [Off, Off+Len).
type Frame struct {
	ID     uint64 `json:"id"`
	Op     Op     `json:"op"`
	Slot   int    `json:"slot"`
	Off    int    `json:"off"`
	Len    int    `json:"len"`
	Status Status `json:"status"`
}

// Handler serves one request with exclusive access to its slot buffer.
type Handler func(req Frame, buf *ByteBuf) error

// Mailbox pairs a bounded request queue with a bounded response queue. Both
// reject frames when full rather than overwriting them, so a client learns
// it must poll again later.
type Mailbox struct {
	pool      *Pool
	requests  buffer.Buffer[Frame]
	responses buffer.Buffer[Frame]
	nextID    atomic.Uint64
	core      *metric.Metrics
}

// MailboxOption configures a Mailbox.
type MailboxOption func(*mailboxOptions)

type mailboxOptions struct {
	registry *metric.MetricsRegistry
	name     string
}

// WithMailboxMetrics exports both queues and the core mailbox gauges.
func WithMailboxMetrics(registry *metric.MetricsRegistry, name string) MailboxOption {
	return func(o *mailboxOptions) {
		o.registry = registry
		o.name = name
	}
}

// NewMailbox creates a mailbox over pool whose queues each hold depth frames.
func NewMailbox(pool *Pool, depth int, opts ...MailboxOption) (*Mailbox, error) {
	var o mailboxOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	queue := func(suffix string) (buffer.Buffer[Frame], error) {
		bopts := []buffer.Option[Frame]{buffer.WithOverflowPolicy[Frame](buffer.Reject)}
		if o.registry != nil && o.name != "" {
			bopts = append(bopts, buffer.WithMetrics[Frame](o.registry, o.name+"_"+suffix))
		}
		return buffer.NewCircularBuffer[Frame](depth, bopts...)
	}

	requests, err := queue("requests")
	if err != nil {
		return nil, errors.Wrap(err, "Mailbox", "NewMailbox", "create request queue")
	}
	responses, err := queue("responses")
	if err != nil {
		return nil, errors.Wrap(err, "Mailbox", "NewMailbox", "create response queue")
	}

	m := &Mailbox{pool: pool, requests: requests, responses: responses}
	if o.registry != nil {
		m.core = o.registry.CoreMetrics()
	}
	return m, nil
}

// Pool returns the pool the frames refer to.
func (m *Mailbox) Pool() *Pool { return m.pool }

// Submit validates and enqueues a request. A full queue yields a transient
// error wrapping errors.ErrCapacityExceeded.
func (m *Mailbox) Submit(op Op, slot, off, n int) (Frame, error) {
	if slot < 0 || slot >= m.pool.Len() {
		return Frame{}, errors.WrapInvalid(errors.ErrSlotNotFound, "Mailbox", "Submit",
			fmt.Sprintf("slot %d of %d", slot, m.pool.Len()))
	}
	if off < 0 || n < 0 || off > m.pool.BufSize()-n {
		return Frame{}, errors.WrapInvalid(errors.ErrIndexOutOfRange, "Mailbox", "Submit",
			fmt.Sprintf("range [%d,%d) of %d", off, off+n, m.pool.BufSize()))
	}

	req := Frame{ID: m.nextID.Add(1), Op: op, Slot: slot, Off: off, Len: n}
	err := m.requests.Write(req)
	m.observe("requests", m.requests, err)
	if err != nil {
		return Frame{}, err
	}
	return req, nil
}

// NextRequest dequeues the oldest pending request.
func (m *Mailbox) NextRequest() (Frame, bool) {
	req, ok := m.requests.Read()
	if ok {
		m.observe("requests", m.requests, nil)
	}
	return req, ok
}

// Complete enqueues the response to req.
func (m *Mailbox) Complete(req Frame, status Status) error {
	resp := req
	resp.Status = status
	err := m.responses.Write(resp)
	m.observe("responses", m.responses, err)
	return err
}

// PollResponse dequeues the oldest response, if any.
func (m *Mailbox) PollResponse() (Frame, bool) {
	resp, ok := m.responses.Read()
	if ok {
		m.observe("responses", m.responses, nil)
	}
	return resp, ok
}

// Serve handles pending requests until the request queue is empty or the
// response queue fills up. A request whose response cannot be queued is put
// back at the front. It returns the number of requests completed.
func (m *Mailbox) Serve(h Handler) (int, error) {
	served := 0
	for {
		if m.responses.IsFull() {
			return served, nil
		}
		req, ok := m.NextRequest()
		if !ok {
			return served, nil
		}

		status := StatusOK
		err := m.pool.With(req.Slot, func(b *ByteBuf) error {
			return h(req, b)
		})
		if err != nil {
			status = StatusError
		}

		if err := m.Complete(req, status); err != nil {
			if rqErr := m.requests.Requeue(req); rqErr != nil {
				return served, stderrors.Join(err, rqErr)
			}
			return served, nil
		}
		served++
	}
}

// Pending returns the number of queued requests and responses.
func (m *Mailbox) Pending() (requests, responses int) {
	return m.requests.Size(), m.responses.Size()
}

// Close rejects further submissions and completions.
func (m *Mailbox) Close() error {
	return stderrors.Join(m.requests.Close(), m.responses.Close())
}

func (m *Mailbox) observe(queue string, b buffer.Buffer[Frame], err error) {
	if m.core == nil {
		return
	}
	m.core.RecordMailbox(queue, b.Size(), stderrors.Is(err, errors.ErrCapacityExceeded))
}
