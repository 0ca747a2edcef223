package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Server struct {
	HTTP *http.Server
}

type Options struct {
	Addr         string
	ServiceName  string
	Logger       *zap.Logger
	Router       chi.Router
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func New(opts Options) *Server {
	if opts.Router == nil {
		opts.Router = chi.NewRouter()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           opts.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	if opts.Logger != nil {
		srv.ErrorLog = zap.NewStdLog(opts.Logger.Named(opts.ServiceName))
	}
	return &Server{HTTP: srv}
}

func (s *Server) Start(log *zap.Logger) error {
	log.Info("http server starting", zap.String("addr", s.HTTP.Addr))
	return s.HTTP.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.HTTP.Shutdown(ctx)
}
