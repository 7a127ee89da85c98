// Package server is the control-plane http server: a plain mux
// assembled from fx-contributed routes, with optional cleartext
// http/2 for clients that multiplex.
package server

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

type HttpServerParams struct {
	fx.In

	Context context.Context

	Config HttpConfig

	Handlers   []*HttpHandler `group:"handlers"`
	Logger     *zap.Logger
	Shutdowner fx.Shutdowner
}

type HttpServer struct {
	ctx        context.Context
	addr       string
	server     *http.Server
	log        *zap.Logger
	shutdowner fx.Shutdowner
}

func NewHttpServer(params HttpServerParams) *HttpServer {
	mux := http.NewServeMux()

	for _, handler := range params.Handlers {
		mux.Handle(handler.Name, handler.Handler)
	}

	var handler http.Handler = mux
	if params.Config.H2c {
		handler = h2c.NewHandler(mux, &http2.Server{})
	}

	server := &http.Server{
		Addr:    params.Config.Addr(),
		Handler: handler,
	}

	return &HttpServer{
		ctx:        params.Context,
		addr:       server.Addr,
		server:     server,
		log:        params.Logger,
		shutdowner: params.Shutdowner,
	}
}

func NewLifecycleServer(params HttpServerParams, lc fx.Lifecycle) *HttpServer {
	server := NewHttpServer(params)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go server.Serve(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
	return server
}

// Serve listens and serves until the server is shut down. A failure
// to listen or serve requests application shutdown instead of being
// swallowed in the server goroutine.
func (s *HttpServer) Serve(context.Context) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	cfg := net.ListenConfig{}

	listener, err := cfg.Listen(ctx, "tcp", s.addr)
	if err != nil {
		s.log.With(zap.Error(err)).Error("failed to listen")
		return s.exit(err)
	}

	s.log.With(zap.String("address", listener.Addr().String())).Info("listening")

	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		s.log.With(zap.Error(err)).Error("failed to serve")
		return s.exit(err)
	}

	return nil
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.With(zap.Error(err)).Error("failed to shutdown")
		return err
	}

	return nil
}

func (s *HttpServer) exit(err error) error {
	if sderr := s.shutdowner.Shutdown(fx.ExitCode(1)); sderr != nil {
		s.log.Error("error shutting down", zap.Error(sderr))
	}
	return err
}
