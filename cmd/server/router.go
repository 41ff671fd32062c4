package main

import (
	"net/http"

	"github.com/benvon/pasfoto/internal/handlers"
	"github.com/benvon/pasfoto/internal/middleware"
	"github.com/benvon/pasfoto/internal/ratelimit"
	"github.com/benvon/pasfoto/internal/telemetry"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

type routerDeps struct {
	log         *zap.Logger
	frontendURL string
	enableHSTS  bool
	tracing     bool
	limiter     ratelimit.Limiter
	uploads     *handlers.UploadHandler
	health      *handlers.HealthChecker
	openAPI     *handlers.OpenAPIHandler
	metrics     http.Handler
}

// newRouter builds the HTTP surface. Middleware registered first runs outermost.
func newRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()

	if d.tracing {
		r.Use(otelmux.Middleware(telemetry.ServiceName))
	}
	r.Use(middleware.SecurityHeaders(d.enableHSTS))
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(d.frontendURL, d.log))
	r.Use(middleware.ErrorHandler(d.log))
	r.Use(middleware.Audit(d.log))
	r.Use(middleware.Logging(d.log))

	// Not rate limited
	r.HandleFunc("/healthz", d.health.HealthCheck).Methods(http.MethodGet)
	if d.metrics != nil {
		r.Handle("/metrics", d.metrics).Methods(http.MethodGet)
	}
	d.openAPI.RegisterRoutes(r)

	// Admission runs before the body is read
	d.uploads.RegisterRoutes(r,
		middleware.RateLimit(d.limiter, d.log),
		middleware.MaxRequestSize(middleware.MaxUploadRequestSize, d.log),
		middleware.RequireMultipart(d.log),
		middleware.Timeout(middleware.UploadRequestTimeout),
	)

	// Preflight requests match no method-restricted route; the CORS middleware answers them
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}
