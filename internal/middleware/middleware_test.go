package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Jackzmc/flashforge-api-server/internal/service"
)

func TestLoggerRecordsStatusAndFlushes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("hello"))
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush() error = %v", err)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/apis/printers", nil))

	if !rec.Flushed {
		t.Error("flush not passed through")
	}
	out := buf.String()
	for _, want := range []string{"status=418", "path=/apis/printers", "bytes=5"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestAuth(t *testing.T) {
	auth, err := service.NewAuthService(service.AuthConfig{Password: "pw", PasswordForRead: true}, service.JWTConfig{Secret: "k"})
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := auth.IssueToken("pw")
	if err != nil {
		t.Fatal(err)
	}

	h := Auth(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		method string
		target string
		header http.Header
		want   int
	}{
		{"read without credentials", http.MethodGet, "/x", nil, http.StatusUnauthorized},
		{"read with password", http.MethodGet, "/x", http.Header{PasswordHeader: {"pw"}}, http.StatusNoContent},
		{"read with bearer", http.MethodGet, "/x", http.Header{"Authorization": {"Bearer " + token}}, http.StatusNoContent},
		{"read with query token", http.MethodGet, "/x?token=" + token, nil, http.StatusNoContent},
		{"malformed header", http.MethodGet, "/x", http.Header{"Authorization": {"Basic abc"}}, http.StatusUnauthorized},
		{"write not guarded", http.MethodPost, "/x", nil, http.StatusNoContent},
		{"query token ignored on write", http.MethodPost, "/x?token=" + token, nil, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			for k, v := range tt.header {
				req.Header[k] = v
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
