package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"imgview/internal/logging"
	"imgview/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	prev := logging.GetLevel()
	logging.SetLevel(logging.LevelDebug)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		logging.SetLevel(prev)
	})
	return &buf
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func newRouter(config LoggingConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(Metrics(), Logger(config))
	r.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("body"))
	})
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.HandleFunc("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/stats", "/stats"},
		{"newline", "a\nb\rc", "a b c"},
		{"escape", "\x1b[31mred", "[31mred"},
		{"null and bell", "a\x00b\x07c", "abc"},
		{"tab kept", "a\tb", "a\tb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogField(tt.in); got != tt.want {
				t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoggerWritesRequestLine(t *testing.T) {
	buf := captureLog(t)
	router := newRouter(DefaultLoggingConfig())

	req := httptest.NewRequest("GET", "/stats?x=1", http.NoBody)
	req.RemoteAddr = "10.0.0.1:5555"
	router.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{"10.0.0.1", "GET", "/stats?x=1", "418", "4B"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestLoggerSkipsHealthChecks(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantLog bool
	}{
		{"default skips", DefaultLoggingConfig(), false},
		{"enabled logs", LoggingConfig{LogHealthChecks: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			newRouter(tt.config).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/healthz", http.NoBody))
			if got := strings.Contains(buf.String(), "/healthz"); got != tt.wantLog {
				t.Errorf("logged = %v, want %v (log: %q)", got, tt.wantLog, buf.String())
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr", "192.168.1.2:1234", "", "192.168.1.2"},
		{"forwarded chain", "127.0.0.1:1", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"forwarded single", "127.0.0.1:1", " 203.0.113.9 ", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", http.NoBody)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	router := newRouter(DefaultLoggingConfig())
	counter := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "204")
	before := counterValue(t, counter)

	for _, id := range []string{"1", "2", "3"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/items/"+id, http.NoBody))
	}

	if got := counterValue(t, counter) - before; got != 3 {
		t.Errorf("requests counted under the template = %v, want 3", got)
	}
}

func TestResponseWriterFirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)
	if _, err := rw.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	rw.Flush()

	if rw.statusCode != http.StatusNotFound || rec.Code != http.StatusNotFound {
		t.Errorf("status = %d (recorded %d), want 404", rw.statusCode, rec.Code)
	}
	if rw.bytesWritten != 3 {
		t.Errorf("bytesWritten = %d, want 3", rw.bytesWritten)
	}
}
