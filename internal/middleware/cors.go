package middleware

import (
	"github.com/go-chi/cors"
)

// CORS returns cors.Options for the editor frontend. When no origins are
// configured it falls back to the local Vite dev server. If "*" is present,
// AllowCredentials is forced off (browsers reject a wildcard origin combined
// with Access-Control-Allow-Credentials: true).
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173"}
	}

	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}
