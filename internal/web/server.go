package web

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/hotdog/config"
	"github.com/vadiminshakov/hotdog/internal/clients"
	"github.com/vadiminshakov/hotdog/internal/domain"
	"github.com/vadiminshakov/hotdog/internal/metrics"
	"github.com/vadiminshakov/hotdog/internal/session"
)

const (
	heartbeatInterval = 30 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type sessionRegistry interface {
	Create() *session.Session
	Get(id string) (*session.Session, error)
	Attach(id string, b *clients.BridgeClient) error
	Detach(id string, b *clients.BridgeClient)
}

type journalFeed interface {
	EventsAfter(index uint64) ([]domain.ConnectRecordEntry, error)
	Subscribe() chan domain.ConnectRecordEntry
	Unsubscribe(ch chan domain.ConnectRecordEntry)
}

// Config carries the optional parts of the server.
type Config struct {
	Addr     string
	DogImage string
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Journal enables /journal/stream. Leave nil when journaling is off.
	Journal journalFeed
}

// Server exposes the page, the session API, the wallet bridge and SSE streams.
type Server struct {
	addr     string
	dogImage string
	sessions sessionRegistry
	journal  journalFeed
	metrics  *metrics.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// base bounds hijacked bridge connections, which http.Server.Shutdown does not close.
	base context.Context
}

// NewServer creates a new web server instance.
func NewServer(cfg Config, sessions sessionRegistry) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DogImage == "" {
		cfg.DogImage = config.DefaultDogImage
	}

	return &Server{
		addr:     cfg.Addr,
		dogImage: cfg.DogImage,
		sessions: sessions,
		journal:  cfg.Journal,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		base: context.Background(),
	}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", gzipHandler(http.HandlerFunc(s.handleIndex)))
	mux.HandleFunc("/session/connect", s.handleConnect)
	mux.HandleFunc("/session/state", s.handleState)
	mux.HandleFunc("/session/stream", s.handleStateStream)
	mux.HandleFunc("/session/qr.png", s.handleQR)
	mux.HandleFunc("/wallet/bridge", s.handleBridge)
	mux.HandleFunc("/journal/stream", s.handleJournalStream)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.base = ctx

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve http")
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
// Browsers only expose window.ethereum on secure origins other than localhost,
// so public deployments need this.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}
	s.base = ctx

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("acme http server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme http server", zap.Error(err))
		}
	}()

	s.logger.Info("web server listening with automatic TLS",
		zap.String("addr", s.addr),
		zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve https")
	}
	return nil
}
