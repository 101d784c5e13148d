package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/Geniuskaa/participant_registry/internal/config"
	"github.com/Geniuskaa/participant_registry/pkg/metrics"
	"github.com/Geniuskaa/participant_registry/pkg/participant"
	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"net/http"
	"time"
)

const (
	PARTICIPANTS_PATH = "/participants"
	AUTH_REALM        = "participants"
	SHUTDOWN_TIMEOUT  = time.Second * 10
)

type Server struct {
	ctx     context.Context
	logger  *zap.Logger
	mux     *chi.Mux
	handler *participant.Handler
	serv    *http.Server
	cfg     *config.Entity
}

func NewServer(ctx context.Context, logger *zap.Logger, mux *chi.Mux, handler *participant.Handler, conf *config.Entity) *Server {
	return &Server{ctx: ctx, logger: logger, mux: mux, handler: handler, cfg: conf}
}

func (s *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	s.mux.ServeHTTP(writer, request)
}

// Init wires routes and middleware. gatherer is the registry m was created on.
func (s *Server) Init(m *metrics.Metrics, gatherer prometheus.Gatherer) {
	s.mux.Use(middleware.RequestID, middleware.RealIP, s.recoverer, s.requestLogger, m.Middleware)

	s.mux.Get("/health", func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.Handle("/metrics", metrics.Handler(gatherer))

	s.mux.Group(func(r chi.Router) {
		if s.cfg.Auth.Username != "" {
			r.Use(middleware.BasicAuth(AUTH_REALM, map[string]string{s.cfg.Auth.Username: s.cfg.Auth.Password}))
		}
		r.Mount(PARTICIPANTS_PATH, s.handler.Routes())
	})

	s.mux.NotFound(func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusNotFound, map[string]string{"status": "error", "message": "Route not found."})
	})
	s.mux.MethodNotAllowed(func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(writer, http.StatusMethodNotAllowed, map[string]string{"status": "error", "message": "Method not allowed."})
	})
}

// WatchLogLevel applies LOG_LEVEL changes of the config file to atom while
// the process runs.
func (s *Server) WatchLogLevel(v *viper.Viper, atom zap.AtomicLevel) {
	v.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Info(fmt.Sprintf("Config file changed: %s", e.Name))
		ApplyLogLevel(s.logger, atom, v.GetString(config.LOG_LEVEL))
	})
	v.WatchConfig()
}

// ApplyLogLevel sets atom from a level name, keeping the current level when
// the name is not valid.
func ApplyLogLevel(logger *zap.Logger, atom zap.AtomicLevel, level string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		logger.Warn("Ignoring invalid log level", zap.String("level", level))
		return
	}
	if lvl != atom.Level() {
		atom.SetLevel(lvl)
		logger.Info("Log level changed", zap.Stringer("level", lvl))
	}
}

// Start serves until ctx given to NewServer is cancelled, then shuts down
// gracefully.
func (s *Server) Start(addr string) error {
	s.serv = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.serv.ListenAndServe()
	}()

	s.logger.Info("Service successfully started", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("Start failed: %w", err)
	case <-s.ctx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()

	s.logger.Info("Shutting down")
	if err := s.serv.Shutdown(ctx); err != nil {
		return fmt.Errorf("Shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) recoverer(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				s.logger.Error("panic occurred", zap.Any("panic", err), zap.String("path", request.URL.Path),
					zap.String("request_id", middleware.GetReqID(request.Context())))
				writeJSON(writer, http.StatusInternalServerError, map[string]string{"status": "error", "message": "Internal server error"})
			}
		}()
		handler.ServeHTTP(writer, request)
	})
}

func (s *Server) requestLogger(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(writer, request.ProtoMajor)

		handler.ServeHTTP(ww, request)

		s.logger.Info("Request handled",
			zap.String("method", request.Method),
			zap.String("path", request.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(request.Context())),
		)
	})
}

func writeJSON(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(body)
}
