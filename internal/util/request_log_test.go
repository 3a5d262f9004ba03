package util

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLogRecordsStatusAndLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	initLogger(&buf, "debug")

	h := WithRequestID(WithRequestLog("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/subjects/x", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "http_request" || entry["level"] != "WARN" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["status"] != float64(404) || entry["bytes"] != float64(7) || entry["request_id"] != "rid-1" {
		t.Fatalf("unexpected fields: %v", entry)
	}
	if entry["service"] != "api" || entry["path"] != "/api/subjects/x" {
		t.Fatalf("unexpected fields: %v", entry)
	}
}
