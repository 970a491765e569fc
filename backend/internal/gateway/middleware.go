package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"student_records/backend/internal/gateway/util"
	"student_records/backend/internal/shared"
)

// TokenValidator resolves a bearer token into the calling principal
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (shared.Principal, *shared.User, error)
}

// AuthMiddleware validates the bearer token and injects the principal into the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Extract Token
			tokenStr, err := util.ExtractToken(r)
			if err != nil {
				util.WriteJSONError(w, http.StatusUnauthorized, "Authorization token required")
				return
			}

			// 2. Validate
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			principal, _, err := validator.ValidateToken(ctx, tokenStr)
			if err != nil {
				util.HandleGRPCError(w, err)
				return
			}

			// 3. Inject Principal into Context
			next.ServeHTTP(w, r.WithContext(util.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAdmin rejects callers without an admin-scoped token.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := util.PrincipalFrom(r)
		if !ok {
			util.WriteJSONError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !principal.IsAdmin() {
			util.WriteJSONError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger emits one structured entry per request.
func RequestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			statusCode := ww.Status()
			if statusCode == 0 {
				statusCode = http.StatusOK
			}

			entry := log.WithFields(logrus.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"http_method": r.Method,
				"uri":         r.RequestURI,
				"status_code": statusCode,
				"latency_ms":  time.Since(start).Milliseconds(),
				"bytes":       ww.BytesWritten(),
				"client_ip":   r.RemoteAddr,
				"user_agent":  r.UserAgent(),
			})

			switch {
			case statusCode >= 500:
				entry.Error("Request completed with server error")
			case statusCode >= 400:
				entry.Warn("Request completed with client error")
			default:
				entry.Info("Request completed successfully")
			}
		})
	}
}

func writeNotFound(w http.ResponseWriter) {
	util.WriteJSONError(w, http.StatusNotFound, "Route not found")
}
