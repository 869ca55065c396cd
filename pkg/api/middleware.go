package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/opsforge/execcore/pkg/observability"
	"github.com/opsforge/execcore/pkg/shared/logging"
)

// RequestLogger logs one structured line per request, mirroring the
// field vocabulary the rest of the module uses via pkg/shared/logging.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := logging.NewFields().
				Component("api").
				Operation(r.Method + " " + r.URL.Path).
				Duration(time.Since(start)).
				With("status", ww.Status()).
				With("request_id", middleware.GetReqID(r.Context()))
			log.Info("http_request", fields.ZapFields()...)
		})
	}
}

// HTTPMetrics records request_duration_seconds against m, labeled by the
// route pattern rather than the raw path so high-cardinality IDs never
// leak into a label value.
func HTTPMetrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			route := routePattern(r)
			m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
