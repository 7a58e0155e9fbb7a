package httpapi

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, the HTTP layer stays quiet.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// defaultLogLevel is read once from the environment. Unset means no
// per-request logging.
var defaultLogLevel = parseRequestLevel(os.Getenv("PUMPD_HTTP_LOG_LEVEL"))

func parseRequestLevel(v string) zerolog.Level {
	switch v {
	case "", "off":
		return zerolog.Disabled
	case "1":
		return zerolog.DebugLevel
	}
	lvl, err := zerolog.ParseLevel(v)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// requestLogLevel resolves the effective level for one request: the "log"
// query parameter wins, then the X-Log-Level header, then the process
// default.
func requestLogLevel(r *http.Request) zerolog.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseRequestLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseRequestLevel(v)
	}
	return defaultLogLevel
}

// logsInfo reports whether a request at lvl should emit info-level lines.
func logsInfo(lvl zerolog.Level) bool {
	return lvl != zerolog.Disabled && lvl <= zerolog.InfoLevel
}
