package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/liuscraft/orion-stream/internal/metrics"
	"github.com/liuscraft/orion-stream/internal/session"
)

const (
	DefaultWSPath       = "/ws"
	DefaultReadLimit    = 1 << 20
	DefaultWriteTimeout = 10 * time.Second
	// closeGrace bounds how long we wait for the peer's close reply.
	closeGrace = 2 * time.Second
)

type Config struct {
	WSPath       string
	ReadLimit    int64
	WriteTimeout time.Duration
	Session      session.Config
}

func DefaultConfig() Config {
	return Config{
		WSPath:       DefaultWSPath,
		ReadLimit:    DefaultReadLimit,
		WriteTimeout: DefaultWriteTimeout,
		Session:      session.DefaultConfig(),
	}
}

// Readier is implemented by synthesizers that can report whether the
// underlying model is loaded.
type Readier interface {
	Ready() bool
}

type healthResponse struct {
	Status            string `json:"status"`
	SynthesizerReady  bool   `json:"synthesizer_ready"`
	ActiveConnections int    `json:"active_connections"`
}

// Server accepts websocket sessions and exposes health and metrics.
type Server struct {
	cfg      Config
	synth    session.UnitSynthesizer
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	registry *session.Registry
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a server. m and g may be nil; /metrics is only mounted when g
// is set.
func New(cfg Config, s session.UnitSynthesizer, m *metrics.Metrics, g prometheus.Gatherer) *Server {
	def := DefaultConfig()
	if cfg.WSPath == "" {
		cfg.WSPath = def.WSPath
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		synth:    s,
		metrics:  m,
		gatherer: g,
		registry: session.NewRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:    logging.Component("server"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WSPath, s.ServeWS)
	mux.HandleFunc("/health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ActiveSessions reports the number of open websocket sessions.
func (s *Server) ActiveSessions() int {
	return s.registry.Len()
}

func (s *Server) synthesizerReady() bool {
	if r, ok := s.synth.(Readier); ok {
		return r.Ready()
	}
	return s.synth != nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:            "healthy",
		SynthesizerReady:  s.synthesizerReady(),
		ActiveConnections: s.registry.Len(),
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down and stops
// every live session.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", addr, "ws_path", s.cfg.WSPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	s.log.Infow("server stopped")
	return err
}

// Close ends every live session.
func (s *Server) Close() {
	s.cancel()
	s.registry.StopAll()
}
