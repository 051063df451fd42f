package api

import (
	"mime"
	"net"
	"net/http"
	"time"

	"github.com/maksimkurb/keen-netstate/src/internal/log"
)

// documentTypes are the accepted content types of desired state documents.
var documentTypes = map[string]bool{
	"application/json":   true,
	"application/yaml":   true,
	"application/x-yaml": true,
	"text/yaml":          true,
}

// DocumentContentType rejects request bodies that are neither JSON nor YAML.
// A missing Content-Type is accepted.
func DocumentContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.ContentLength != 0 {
			if ct := r.Header.Get("Content-Type"); ct != "" {
				mediaType, _, err := mime.ParseMediaType(ct)
				if err != nil || !documentTypes[mediaType] {
					WriteInvalidRequest(w, "Content-Type must be application/json or application/yaml")
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Logger logs every request with its status and duration.
func Logger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Infof("%s %s - %d (%v)", r.Method, r.URL.Path, wrapped.statusCode, time.Since(start).Round(time.Millisecond))
		})
	}
}

// Recovery recovers from panics and returns a 500 error.
func Recovery(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Errorf("Panic recovered: %v", err)
					WriteInternalError(w, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// PrivateSubnetOnly restricts access to clients from loopback and private
// networks, so that the API can listen on all addresses.
func PrivateSubnetOnly(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			ip := net.ParseIP(host)
			if ip == nil {
				logger.Warnf("Invalid client address: %s", r.RemoteAddr)
				WriteForbidden(w, "Access denied")
				return
			}
			if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
				logger.Warnf("Access denied from non-private address: %s", host)
				WriteForbidden(w, "Access denied: only private networks are allowed")
				return
			}
			next.ServeHTTP(w, r)
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
