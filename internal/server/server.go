// Package server serves the output tree read-only over HTTP and pushes live
// reload notifications to connected browsers over a websocket.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/staticpress/internal/errors"
	"github.com/conneroisu/staticpress/internal/logging"
	"github.com/conneroisu/staticpress/internal/metrics"
)

// Options configure the dev server.
type Options struct {
	Host string
	Port int
	// Root is the directory served, normally the output root.
	Root string
	// LiveReload enables the websocket endpoint and client script.
	LiveReload bool
	// InjectScript adds the live reload client to every served HTML page.
	InjectScript bool
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

// Client represents a WebSocket client
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// Server serves the output root with live reload capability
type Server struct {
	opts     Options
	logger   logging.Logger
	recorder metrics.Recorder

	httpServer  *http.Server
	listener    net.Listener
	serverMutex sync.RWMutex
	serveErr    chan error

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn
	hubCancel    context.CancelFunc
	hubDone      chan struct{}

	shutdownOnce sync.Once
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a server. A nil logger or recorder disables that concern.
func New(opts Options, logger logging.Logger, recorder metrics.Recorder) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	return &Server{
		opts:       opts,
		logger:     logger.WithComponent("server"),
		recorder:   recorder,
		serveErr:   make(chan error, 1),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		hubDone:    make(chan struct{}),
	}
}

// Start binds the listener and serves in the background. It returns once
// the server accepts connections.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewIOError("binding dev server", addr, err)
	}

	hubCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go s.runWebSocketHub(hubCtx)

	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serverMutex.Lock()
	s.httpServer = server
	s.listener = ln
	s.hubCancel = cancel
	s.serverMutex.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.serveErr <- err
		}
		close(s.serveErr)
	}()

	s.logger.Info(ctx, "Serving site", "url", s.URL(), "root", s.opts.Root)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the base URL of the running server.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Errors delivers an unexpected serve failure and is closed when serving stops.
func (s *Server) Errors() <-chan error {
	return s.serveErr
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	if s.opts.LiveReload {
		mux.HandleFunc("/livereload", s.handleWebSocket)
		mux.HandleFunc("/livereload.js", s.handleLiveReloadScript)
	}
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}
	mux.Handle("/", s.staticHandler())

	return s.addMiddleware(mux)
}

func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-cache")

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served",
			"method", r.Method, "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
	})
}

// Broadcast tells every connected client that paths changed. Paths are
// relative to the served root.
func (s *Server) Broadcast(paths ...string) {
	for _, p := range paths {
		s.broadcastMessage(UpdateMessage{Type: "reload", Path: p, Timestamp: time.Now()})
	}
}

func (s *Server) broadcastMessage(msg UpdateMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "Failed to marshal message")
		jsonData = []byte(`{"type":"reload"}`)
	}

	select {
	case s.broadcast <- jsonData:
		s.recorder.IncLiveReloadBroadcast()
	case <-s.hubDone:
	default:
		s.logger.Warn(context.Background(), nil, "Live reload queue full, dropping message", "path", msg.Path)
	}
}

// ClientCount returns the number of connected live reload clients.
func (s *Server) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

// Shutdown gracefully shuts down the server and disconnects all clients
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		server := s.httpServer
		cancel := s.hubCancel
		s.serverMutex.RUnlock()

		if cancel != nil {
			cancel()
			<-s.hubDone
		}

		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				shutdownErr = fmt.Errorf("shutting down dev server: %w", err)
			}
		}
		s.logger.Info(ctx, "Dev server stopped")
	})

	return shutdownErr
}
