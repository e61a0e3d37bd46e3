package api

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uptime-rewards/internal/auth"
	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/logging"
	"github.com/uptime-rewards/internal/types"
)

type contextKey int

const claimsKey contextKey = iota

// claimsFrom returns the verified token claims of the request.
func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// walletFrom returns the authenticated wallet, or "" for anonymous requests.
func walletFrom(ctx context.Context) string {
	if c, ok := claimsFrom(ctx); ok {
		return c.Wallet
	}
	return ""
}

// LoggingMiddleware logs HTTP requests and puts a request-scoped logger on
// the context.
func LoggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)
			reqLogger := logger.WithField("request_id", requestID)
			r = r.WithContext(logging.WithLogger(r.Context(), reqLogger))

			// Create a response writer wrapper to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			reqLogger.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   wrapped.statusCode,
				"duration": time.Since(start).String(),
				"ip":       clientIP(r),
			}).Info("HTTP request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecoveryMiddleware recovers from panics and returns 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.FromContext(r.Context()).WithField("panic", err).Error("Recovered from panic")
				respondError(w, http.StatusInternalServerError, types.ErrCodeInternal, "An internal server error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware adds CORS headers to responses.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CompressionMiddleware adds gzip compression to responses.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gz := gzip.NewWriter(w)
		defer gz.Close()

		next.ServeHTTP(&gzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
	})
}

// gzipResponseWriter wraps http.ResponseWriter with gzip compression.
type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// Authenticator verifies bearer tokens.
type Authenticator interface {
	Authenticate(token string) (*auth.Claims, error)
}

// AuthMiddleware requires a valid bearer token and puts its claims on the
// request context.
func AuthMiddleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if header == "" || token == "" || token == header {
				respondServiceError(w, r, apperrors.NewUnauthorizedError("missing bearer token"))
				return
			}

			claims, err := authn.Authenticate(token)
			if err != nil {
				respondServiceError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithWallet(claims.Wallet))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware requires a token from the admin login whose wallet still
// holds the admin role and is not banned.
func AdminMiddleware(accounts AccountReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFrom(r.Context())
			if !ok {
				respondServiceError(w, r, apperrors.NewUnauthorizedError("missing bearer token"))
				return
			}
			if !claims.Admin {
				respondServiceError(w, r, apperrors.NewForbiddenError("admin login required"))
				return
			}

			acct, err := accounts.Get(r.Context(), claims.Wallet)
			if err != nil {
				if apperrors.HasCode(err, types.ErrCodeNotFound) {
					err = apperrors.NewForbiddenError("not an admin")
				}
				respondServiceError(w, r, err)
				return
			}
			if acct.Role != types.RoleAdmin || acct.IsBanned {
				respondServiceError(w, r, apperrors.NewForbiddenError("not an admin"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the request's remote host without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
