package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/prasathkrishna17/Botique-maid/internal/platform/requestctx"
)

func TestRequesterMiddlewareRecordsIPAndSession(t *testing.T) {
	var got requestctx.Requester
	handler := RequesterMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.RequesterFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/lookup", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	req.Header.Set(SessionHeader, " sess-123 ")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.RemoteIP != "203.0.113.9" || got.SessionID != "sess-123" {
		t.Fatalf("unexpected requester %+v", got)
	}
}

func TestRequestLoggerMiddlewareLogsCompletion(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Fatalf("expected warn level for 404, got %s", entries[0].Level)
	}
	if status := entries[0].ContextMap()["status"]; status != int64(http.StatusNotFound) {
		t.Fatalf("unexpected status field %v", status)
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bookings", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestEventLoggerUsesWarnForErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "booking.created", map[string]any{"bookingID": "100001"})
	log(context.Background(), "booking.publish_failed", map[string]any{"error": context.Canceled})

	all := logs.All()
	if len(all) != 2 {
		t.Fatalf("expected two entries, got %d", len(all))
	}
	if all[0].Level != zap.InfoLevel || all[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected levels %s %s", all[0].Level, all[1].Level)
	}
}
