package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/health"
	"github.com/c360/ringkit/pkg/logbuf"
	"github.com/c360/ringkit/service"
)

// Backend is the part of the runtime the gateway serves.
type Backend interface {
	Info() service.Info
	Health() health.Status
	Channels() *logbuf.Set
	Writer(idx int) (io.Writer, error)
	Subscribe(idx int) (<-chan []byte, func(), error)
}

var _ Backend = (*service.Runtime)(nil)

// Gateway exposes runtime state over HTTP and channel tails over websocket.
type Gateway struct {
	backend  Backend
	port     int
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex // protects server and listener
	server   *http.Server
	listener net.Listener

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
	activeTails    atomic.Int64
}

// New creates a gateway for backend. A negative port picks a free one.
func New(backend Backend, port int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		backend: backend,
		port:    port,
		logger:  logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routes served by Start.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /api/v1/runtime", g.handleRuntime)
	mux.HandleFunc("GET /api/v1/channels", g.handleChannels)
	mux.HandleFunc("GET /api/v1/channels/{channel}", g.handleSnapshot)
	mux.HandleFunc("POST /api/v1/channels/{channel}", g.handleAppend)
	mux.HandleFunc("GET /api/v1/channels/{channel}/tail", g.handleTail)
	return g.withRequestID(mux)
}

// withRequestID echoes or assigns X-Request-ID and counts requests.
func (g *Gateway) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		g.requestsTotal.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := g.backend.Health()
	code := http.StatusOK
	if st.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	g.writeJSON(w, code, st)
}

func (g *Gateway) handleRuntime(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.backend.Info())
}

func (g *Gateway) handleChannels(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, g.backend.Channels().Stats())
}

func (g *Gateway) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	_, ch, ok := g.resolve(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ch.Snapshot())
}

// handleAppend writes the request body to the channel as one record. Bodies
// larger than the channel are refused rather than silently truncated.
func (g *Gateway) handleAppend(w http.ResponseWriter, r *http.Request) {
	idx, ch, ok := g.resolve(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	limit := int64(ch.Stats().Cap)
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > limit {
		g.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("record exceeds channel capacity of %d bytes", limit))
		return
	}

	wr, err := g.backend.Writer(idx)
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	_, _ = wr.Write(body)
	w.WriteHeader(http.StatusNoContent)
}

// resolve finds the channel named by the {channel} path value, either by
// index or by name.
func (g *Gateway) resolve(w http.ResponseWriter, r *http.Request) (int, *logbuf.Channel, bool) {
	key := r.PathValue("channel")
	set := g.backend.Channels()

	if idx, err := strconv.Atoi(key); err == nil {
		if ch, err := set.Get(idx); err == nil {
			return idx, ch, true
		}
	}
	for idx, ch := range set.All() {
		if ch.Name() == key {
			return idx, ch, true
		}
	}
	g.writeError(w, http.StatusNotFound, "channel not found")
	return 0, nil, false
}

func (g *Gateway) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("Encode response failed", "error", err)
	}
}

// writeError writes an error response
func (g *Gateway) writeError(w http.ResponseWriter, code int, message string) {
	g.requestsFailed.Add(1)
	g.writeJSON(w, code, map[string]any{
		"error":  message,
		"status": code,
	})
}

// Stats returns request and tail counters.
func (g *Gateway) Stats() (requests, failed uint64, tails int64) {
	return g.requestsTotal.Load(), g.requestsFailed.Load(), g.activeTails.Load()
}

// Start listens and serves until Stop is called. It returns nil after a
// clean shutdown.
func (g *Gateway) Start() error {
	g.mu.Lock()
	if g.server != nil {
		g.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Gateway", "Start", "check running state")
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", max(g.port, 0)))
	if err != nil {
		g.mu.Unlock()
		return errors.WrapFatal(err, "Gateway", "Start", fmt.Sprintf("listen on port %d", g.port))
	}
	srv := &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.server = srv
	g.listener = ln
	g.mu.Unlock()

	g.logger.Info("Gateway listening", "address", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Gateway", "Start", "serve")
	}
	return nil
}

// Stop shuts the server down. Open tails are closed by the runtime when it
// closes its subscribers; Shutdown does not wait for hijacked connections.
func (g *Gateway) Stop(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server == nil {
		return nil
	}
	err := g.server.Shutdown(ctx)
	g.server = nil
	g.listener = nil
	if err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "shutdown")
	}
	return nil
}

// Addr returns the bound address once started.
func (g *Gateway) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}
