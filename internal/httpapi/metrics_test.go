package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRoutePatternFallsBackToPath(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/nope", nil)
	if got := routePatternOrPath(r); got != "/nope" {
		t.Fatalf("got %q", got)
	}
}

func TestMetricsMiddlewarePassesStatusThrough(t *testing.T) {
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/loop", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestParseRequestLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":      zerolog.Disabled,
		"off":   zerolog.Disabled,
		"1":     zerolog.DebugLevel,
		"debug": zerolog.DebugLevel,
		"info":  zerolog.InfoLevel,
		"error": zerolog.ErrorLevel,
		"bogus": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseRequestLevel(in); got != want {
			t.Fatalf("parseRequestLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestRequestLogLevelHeaderOverride(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.Header.Set("X-Log-Level", "debug")
	if got := requestLogLevel(r); got != zerolog.DebugLevel {
		t.Fatalf("got %v", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/status?log=error", nil)
	r.Header.Set("X-Log-Level", "debug")
	if got := requestLogLevel(r); got != zerolog.ErrorLevel {
		t.Fatalf("query must win over header, got %v", got)
	}
}
