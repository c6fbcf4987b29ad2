package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/openbci/internal/bus"
	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/discovery"
	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/monitor"
	"github.com/muurk/openbci/internal/version"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 10 * time.Second

//go:embed web
var webFiles embed.FS

// Device is the board control surface the server needs.
// *device.Commander implements it.
type Device interface {
	StartStream() error
	StopStream() error
	Reset() error
	SetDebug(enabled bool) error
	Subscribe(fn bus.Subscriber) (bus.Handle, error)
	Unsubscribe(h bus.Handle) error
	Status() (device.Status, error)
}

// Config holds the server configuration
type Config struct {
	Host             string
	Port             int
	SubscriberBuffer int  // Per-client sample queue length
	Advertise        bool // Announce over mDNS
	InstanceName     string
	Endpoint         string // Board endpoint, published in the mDNS TXT record
}

// Server serves the control, streaming and metrics endpoints
type Server struct {
	config     *Config
	device     Device
	httpServer *http.Server
	listener   net.Listener
	advert     *discovery.Advertisement

	// Cancelled by Shutdown so open streams return
	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu      sync.Mutex
	streams map[string]int // open streams by kind
}

// New creates a new Server instance
func New(config *Config, dev Device) *Server {
	if config.SubscriberBuffer <= 0 {
		config.SubscriberBuffer = 256
	}
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:     config,
		device:     dev,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		streams:    make(map[string]int),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /control/debug", s.handleDebug)
	mux.HandleFunc("POST /control/{command}", s.handleControl)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", monitor.Handler())

	static, err := fs.Sub(webFiles, "web")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /{$}", http.FileServer(http.FS(static)))

	return logRequests(mux)
}

// Start listens and serves until a signal arrives, ctx is done or the
// listener fails. It then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	logging.Info("Starting OpenBCI server",
		zap.String("addr", listener.Addr().String()),
		zap.String("version", version.Version),
	)

	if s.config.Advertise {
		s.startAdvertising()
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
	case <-ctx.Done():
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

func (s *Server) startAdvertising() {
	instance := s.config.InstanceName
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "openbci"
		}
		instance = host
	}

	port := s.config.Port
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	advert, err := discovery.Advertise(instance, port, map[string]string{
		"version":  version.Version,
		"endpoint": s.config.Endpoint,
	})
	if err != nil {
		// Serving still works without discovery
		logging.Warn("mDNS advertisement failed", zap.Error(err))
		return
	}
	s.advert = advert
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.advert.Shutdown()

	// End open streams so Shutdown does not wait on them
	s.cancelBase()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		_ = s.httpServer.Close()
	} else {
		logging.Info("All connections closed gracefully")
	}

	logging.Sync()
	return nil
}

// ActiveStreams returns the number of open /stream and /ws clients
func (s *Server) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.streams {
		total += n
	}
	return total
}

func (s *Server) trackStream(kind string, delta int) {
	s.mu.Lock()
	s.streams[kind] += delta
	s.mu.Unlock()
}
