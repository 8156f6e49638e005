package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"photo-gallery/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewResponseWriter(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rw.statusCode)
	}
	if rw.bytesWritten != 0 {
		t.Errorf("Expected bytesWritten to be 0, got %d", rw.bytesWritten)
	}
	if rw.wroteHeader {
		t.Error("Expected wroteHeader to be false initially")
	}
}

func TestResponseWriterWriteHeader(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())

	rw.WriteHeader(http.StatusNotFound)
	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", rw.statusCode)
	}

	// Second call is ignored
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusNotFound {
		t.Error("Status code should not change after first WriteHeader")
	}
}

func TestResponseWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	n, err := rw.Write([]byte("hello "))
	if err != nil || n != 6 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	_, _ = rw.Write([]byte("world"))

	if rw.bytesWritten != 11 {
		t.Errorf("Expected 11 bytes written, got %d", rw.bytesWritten)
	}
	if !rw.wroteHeader {
		t.Error("Write should mark the header as written")
	}
	if w.Body.String() != "hello world" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestShouldSkip(t *testing.T) {
	config := LoggingConfig{
		SkipPaths:       []string{"/static/"},
		ImageSuffixes:   []string{"/thumbnail", "/compressed"},
		LogHealthChecks: true,
	}

	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"skip prefix", "/static/app.js", config, true},
		{"api request", "/api/photos", config, false},
		{"thumbnail skipped", "/api/photos/photo_1/thumbnail", config, true},
		{"compressed skipped", "/api/photos/photo_1/compressed", config, true},
		{"health logged", "/health", config, false},
		{"health skipped", "/livez", LoggingConfig{}, true},
		{"health logged when enabled", "/livez", LoggingConfig{LogHealthChecks: true}, false},
		{"images logged when enabled", "/api/photos/photo_1/thumbnail", LoggingConfig{ImageSuffixes: []string{"/thumbnail"}, LogImageRequests: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSkip(tt.path, tt.config); got != tt.want {
				t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1 line2"},
		{"cr\rlf", "cr lf"},
		{"esc\x1b[31mred", "esc[31mred"},
		{"nul\x00byte", "nulbyte"},
		{"tab\tkept", "tab\tkept"},
		{"bell\x07", "bell"},
	}

	for _, tt := range tests {
		if got := sanitizeLogField(tt.input); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"forwarded list", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "127.0.0.1:1234", "10.0.0.1"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 10.0.0.3 "}, "127.0.0.1:1234", "10.0.0.3"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.4"}, "127.0.0.1:1234", "10.0.0.4"},
		{"remote addr", nil, "192.168.1.5:5555", "192.168.1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := getClientIP(r); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeW3CField(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"curl/8.0", "curl/8.0"},
		{"Mozilla/5.0 (X11)", `"Mozilla/5.0 (X11)"`},
		{`say "hi"`, `"say ""hi"""`},
	}

	for _, tt := range tests {
		if got := escapeW3CField(tt.input); got != tt.want {
			t.Errorf("escapeW3CField(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestLogger(t *testing.T) {
	buf := captureLog(t)

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/photos?x=1", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	req.Header.Set("User-Agent", "test agent")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{"192.0.2.10", "POST", "/api/photos", "x=1", " 201 7 ", `"test agent"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}

	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/photos/photo_1/thumbnail", nil))
	if buf.Len() != 0 {
		t.Errorf("image request should not be logged by default, got %q", buf.String())
	}
}

func TestFormatW3C(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
	req.RemoteAddr = "203.0.113.9:80"
	rw := newResponseWriter(httptest.NewRecorder())
	rw.statusCode = http.StatusOK
	rw.bytesWritten = 42

	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	got := formatW3C(req, rw, 15*time.Millisecond, now)
	want := "2024-05-01 12:30:00 203.0.113.9 GET /api/cache/stats - 200 42 15 - - -"
	if got != want {
		t.Errorf("formatW3C() =\n%q\nwant\n%q", got, want)
	}
}

func TestMetrics_RouteTemplateLabel(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/api/photos/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodDelete, "/api/photos/{id}", "204")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"photo_1", "photo_2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/photos/"+id, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("requests counted under template = %v, want 2", got)
	}
}

func TestMetrics_SkipPaths(t *testing.T) {
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "200")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/livez", nil))
	if got := testutil.ToFloat64(counter) - before; got != 0 {
		t.Errorf("skipped path was counted %v times", got)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/other", nil))
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("unrouted request counted %v times, want 1", got)
	}
}

func TestRouteLabel_Unmatched(t *testing.T) {
	if got := routeLabel(httptest.NewRequest(http.MethodGet, "/x", nil)); got != "unmatched" {
		t.Errorf("routeLabel() = %q", got)
	}
}

func TestCompression(t *testing.T) {
	large := strings.Repeat(`{"id":"photo_1"},`, 200)

	tests := []struct {
		name           string
		contentType    string
		body           string
		acceptEncoding string
		wantGzip       bool
	}{
		{"large json", "application/json", large, "gzip, deflate", true},
		{"json with charset", "application/json; charset=utf-8", large, "gzip", true},
		{"small json", "application/json", `{"ok":true}`, "gzip", false},
		{"jpeg never compressed", "image/jpeg", large, "gzip", false},
		{"client without gzip", "application/json", large, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.body))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/photos", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			gotGzip := rec.Header().Get("Content-Encoding") == "gzip"
			if gotGzip != tt.wantGzip {
				t.Fatalf("gzip = %v, want %v", gotGzip, tt.wantGzip)
			}

			body := rec.Body.Bytes()
			if gotGzip {
				zr, err := gzip.NewReader(bytes.NewReader(body))
				if err != nil {
					t.Fatalf("gzip.NewReader() error = %v", err)
				}
				body, err = io.ReadAll(zr)
				if err != nil {
					t.Fatalf("read gzip body: %v", err)
				}
			}
			if string(body) != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(tt.body))
			}
		})
	}
}

func TestCompression_PreservesStatus(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/photos/missing", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
