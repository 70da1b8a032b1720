package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hanko-field/storefront/internal/platform/auth"
)

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	log := ServiceLogger(zap.New(fallbackCore))

	log(context.Background(), "order.event.publish_failed", map[string]any{"orderId": "ord_1", "error": "timeout"})
	if fallbackLogs.Len() != 1 || fallbackLogs.All()[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected a warning on the fallback logger, got %+v", fallbackLogs.All())
	}

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log(r.Context(), "wallet.credited", map[string]any{"amount": int64(83)})
	})
	handler = InjectLoggerMiddleware(zap.New(core))(handler)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	entries := logs.FilterMessage("wallet.credited").All()
	if len(entries) != 1 || entries[0].ContextMap()["amount"] != int64(83) {
		t.Fatalf("expected event on request logger, got %+v", logs.All())
	}
}

func TestRequestLoggerRecordsRouteAndShopper(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := chi.NewRouter()
	r.Use(InjectLoggerMiddleware(zap.New(core)), RequestLoggerMiddleware())
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			identity := &auth.Identity{UID: "user-1", Roles: []string{auth.RoleCustomer}}
			next.ServeHTTP(w, req.WithContext(auth.WithIdentity(req.Context(), identity)))
		})
	}, CaptureIdentity).Get("/orders/{orderId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if entries[0].Level != zapcore.WarnLevel || fields["route"] != "/orders/{orderId}" || fields["user_id"] != "user-1" {
		t.Fatalf("unexpected entry %v %+v", entries[0].Level, fields)
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/checkout/place-order", nil))
	if rr.Code != http.StatusInternalServerError || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected JSON 500, got %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected the panic to be logged")
	}
}

func TestClean(t *testing.T) {
	if got := clean("GET\n\x00/x", 4); got != "GET/" {
		t.Fatalf("unexpected %q", got)
	}
}
