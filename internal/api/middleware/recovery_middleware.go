// Package middleware contains HTTP middleware for the health and metrics
// surface.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"listenify.dev/syncengine/internal/utils"
)

// RecoveryMiddleware handles panic recovery for the HTTP API.
type RecoveryMiddleware struct {
	logger *utils.Logger
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger *utils.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger.Named("recovery")}
}

// Recovery recovers a panicking handler and responds with 500 rather than
// letting the panic take down the process. A panic here never reaches the
// WebSocket transport; the two surfaces fail independently.
func (m *RecoveryMiddleware) Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()
				m.logger.Error("panic recovered", fmt.Errorf("panic: %v", err),
					"stack", string(stack),
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
