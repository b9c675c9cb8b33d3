package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/retrainer/internal/api/response"
)

// RequestIDHeader carries the request id back to the caller.
const RequestIDHeader = "X-Request-ID"

// Recovery turns a handler panic into a 500 envelope. When chi's RequestID
// middleware ran first, the id is logged and returned so the caller can quote it.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				reqID := chimw.GetReqID(r.Context())
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", reqID,
				)

				var details any
				if reqID != "" {
					w.Header().Set(RequestIDHeader, reqID)
					details = map[string]string{"request_id": reqID}
				}
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", details)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
