package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

// TraceMiddleware starts an otelhttp server span per request and records its ids on the request
// context so logs and error envelopes can reference the trace.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	instrument := otelhttp.NewMiddleware("storefront-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
	)
	return func(next http.Handler) http.Handler {
		return instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			spanCtx := trace.SpanContextFromContext(r.Context())
			if !spanCtx.IsValid() {
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestctx.WithTrace(r.Context(), requestctx.TraceInfo{
				TraceID:   spanCtx.TraceID().String(),
				SpanID:    spanCtx.SpanID().String(),
				Sampled:   spanCtx.IsSampled(),
				ProjectID: projectID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		}))
	}
}
