package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/dysonlink/internal/device"
	"github.com/nerrad567/dysonlink/internal/discovery"
	"github.com/nerrad567/dysonlink/internal/infrastructure/config"
	"github.com/nerrad567/dysonlink/internal/infrastructure/database"
	"github.com/nerrad567/dysonlink/internal/infrastructure/logging"
)

// shutdownGrace bounds how long Close waits for in-flight requests.
const shutdownGrace = 10 * time.Second

// EventDeviceUpdated is the WebSocket event type carrying a device.Update.
const EventDeviceUpdated = "device.updated"

var (
	errNotStarted = errors.New("api server not started")
	errMissingDep = errors.New("missing dependency")
)

// Deps is what New needs. Logger and Registry are required.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *device.Registry

	// History serves /devices/{serial}/history when set.
	History device.StateHistoryRepository

	// Discovery serves /discovery when set.
	Discovery *discovery.Registry

	// DB adds pool statistics to /metrics when set.
	DB *database.DB

	Version string
}

// Server serves the REST API and the /ws event stream for one Registry.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	registry  *device.Registry
	history   device.StateHistoryRepository
	discovery *discovery.Registry
	db        *database.DB
	version   string
	startTime time.Time
	hub       *Hub

	mu     sync.Mutex
	http   *http.Server
	addr   net.Addr
	cancel context.CancelFunc

	relayOnce sync.Once
}

// New validates deps and builds an unstarted Server.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("%w: logger", errMissingDep)
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: device registry", errMissingDep)
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		history:   deps.History,
		discovery: deps.Discovery,
		db:        deps.DB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
	}, nil
}

// Start binds api.host:api.port and serves in the background until Close
// or until ctx is cancelled. From here on every device Update is relayed
// to WebSocket clients.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	srv := s.newHTTPServer()

	s.mu.Lock()
	s.http, s.addr, s.cancel = srv, ln.Addr(), cancel
	s.mu.Unlock()

	go s.hub.Run(runCtx)
	s.relayOnce.Do(func() { s.registry.Subscribe(s.relayUpdate) })

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) newHTTPServer() *http.Server {
	t := s.cfg.Timeouts
	return &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(t.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(t.Read) * time.Second,
		WriteTimeout:      time.Duration(t.Write) * time.Second,
		IdleTimeout:       time.Duration(t.Idle) * time.Second,
	}
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) relayUpdate(u device.Update) {
	s.hub.Broadcast(EventDeviceUpdated, u)
}

// Close stops accepting requests and waits up to shutdownGrace for those
// in flight. WebSocket clients are disconnected. Safe to call twice.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.http, s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if srv == nil || cancel == nil {
		return nil
	}
	cancel()

	ctx, done := context.WithTimeout(context.Background(), shutdownGrace)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails before Start or when ctx is done.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}

	s.mu.Lock()
	started := s.http != nil
	s.mu.Unlock()
	if !started {
		return errNotStarted
	}
	return nil
}
