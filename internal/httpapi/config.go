package httpapi

import "github.com/go-chi/cors"

// maxBodyBytes caps JSON request bodies. Announcement and glucose payloads
// are tiny; anything near the cap is malformed or hostile.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes overrides the request body cap. A non-positive value
// restores the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// corsOptions stays nil unless CORS is enabled; no middleware is mounted
// in that case.
var corsOptions *cors.Options

// SetCORSOptions configures cross-origin access for browser clients.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	if !enabled {
		corsOptions = nil
		return
	}
	corsOptions = &cors.Options{
		AllowedOrigins: append([]string(nil), origins...),
		AllowedMethods: append([]string(nil), methods...),
		AllowedHeaders: append([]string(nil), headers...),
	}
}
