package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nitu-designer/lehangas/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("migration_target_required", "category in use\nchoose a target", http.StatusConflict).
		WithDetails(map[string]any{"products": 3, "status": "overridden"}))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "migration_target_required" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if body["message"] != "category in use choose a target" {
		t.Fatalf("expected newline stripped, got %q", body["message"])
	}
	if body["trace_id"] != "abc123" {
		t.Fatalf("expected trace id, got %v", body["trace_id"])
	}
	if body["products"] != float64(3) {
		t.Fatalf("expected details merged, got %v", body["products"])
	}
	if body["status"] != float64(http.StatusConflict) {
		t.Fatalf("details must not override status, got %v", body["status"])
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("x", "y", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", got)
	}
}
