package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery middleware recovers from panics
func Recovery(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("Panic while serving request",
						"path", r.URL.Path,
						"panic", err,
						"stack", string(debug.Stack()),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)

					response := map[string]string{
						"error": "Internal server error",
					}
					if encodingErr := json.NewEncoder(w).Encode(response); encodingErr != nil {
						log.Error("Failed to encode panic response", "error", encodingErr)
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
