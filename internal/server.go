package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/taskcrew/internal/config"
	"github.com/kazz187/taskcrew/internal/httpapi"
	"github.com/kazz187/taskcrew/internal/manifest"
	"github.com/kazz187/taskcrew/internal/rpc"
	"github.com/kazz187/taskcrew/pkg/cerr"
	"github.com/kazz187/taskcrew/pkg/clog"
)

type Server struct {
	server    *http.Server
	env       *config.Env
	api       *httpapi.Handler
	rpcServer *rpc.Server
}

func NewServer(env *config.Env, api *httpapi.Handler, rpcServer *rpc.Server) *Server {
	return &Server{
		env:       env,
		api:       api,
		rpcServer: rpcServer,
	}
}

// Handler serves the REST surface under /api, the Connect service and the
// health checks, with CORS and h2c applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	handlerOpts := connect.WithInterceptors(s.interceptors()...)

	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", s.api.Router())
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(rpc.ServiceName), handlerOpts))
	mux.Handle(rpc.NewHandler(s.rpcServer, handlerOpts))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{manifest.AgentIDHeader},
		AllowCredentials: true,
	}).Handler(mux), &http2.Server{})
}

// ListenAndServe starts the HTTP server. ctx is the base context of every
// request, so cancelling it also ends open WatchEvents streams.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckUnaryFilter)),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}
