// Package api is the HTTP query surface of the engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"qctrack/internal/qc"
	"qctrack/internal/storage"
	logx "qctrack/pkg/logx"
)

// Engine is the read side the handlers need.
type Engine interface {
	Options() qc.AggregateOptions
	Machine(ctx context.Context, machineID string) (qc.Machine, error)
	DueTasks(ctx context.Context, today qc.Date) (qc.Report, error)
	Calendar(ctx context.Context, machineID string, from, to, today qc.Date) (qc.Calendar, error)
}

// Recorder stores submitted completions. added is false for a duplicate.
type Recorder interface {
	Record(ctx context.Context, rec qc.CompletionRecord) (added bool, err error)
}

type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RequestLogs  bool

	Engine Engine
	// Recorder and Auditor are nil when storage is disabled.
	Recorder Recorder
	Auditor  Auditor
	// Today returns the current civil date in the installation timezone.
	Today func() qc.Date
	// Health, when set, adds runtime details to /healthz.
	Health func() any

	Log logx.Logger
}

type Server struct {
	opts Options
	app  *echo.Echo
	log  logx.Logger
}

func NewServer(opts Options) *Server {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Today == nil {
		opts.Today = func() qc.Date { return qc.Today(time.Now(), time.UTC) }
	}
	s := &Server{opts: opts, app: echo.New(), log: opts.Log}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Logger.SetLevel(log.OFF)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	s.app.Use(s.requestLogger())
	s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))

	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.log)

	s.app.GET("/healthz", s.healthz)

	v1 := s.app.Group("/v1")
	v1.GET("/schedule", s.schedule)
	v1.GET("/due-tasks", s.dueTasks)
	v1.GET("/machines/:id/calendar", s.calendar)
	v1.POST("/completions", s.recordCompletion)
}

// Serve listens until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.app.Server.ReadTimeout = s.opts.ReadTimeout
	s.app.Server.WriteTimeout = s.opts.WriteTimeout
	s.app.Server.IdleTimeout = s.opts.IdleTimeout

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Start(s.opts.Addr) }()
	s.log.Info("http server listening", logx.String("addr", s.opts.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logx.Field{
				logx.String("method", v.Method),
				logx.String("uri", v.URI),
				logx.Int("status", v.Status),
				logx.Duration("latency", v.Latency),
				logx.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, logx.Err(v.Error))
			}
			if s.opts.RequestLogs {
				s.log.Info("request", fields...)
			} else {
				s.log.Debug("request", fields...)
			}
			return nil
		},
	})
}
