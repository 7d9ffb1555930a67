package router

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/analytics"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/auth"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/guard"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/status"
	"github.com/ovaphlow/pitchfork/service-realty-access/internal/user"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request at debug level.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			// HSTS only over TLS, 30 days
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSOptionsFromEnv reads CORS_ALLOWED_ORIGINS (comma separated) and falls
// back to the local front-end dev servers.
func CORSOptionsFromEnv() cors.Options {
	origins := []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins = origins[:0]
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// Deps are the handlers and middleware the routes are built from.
type Deps struct {
	Logger    *zap.SugaredLogger
	Sessions  *session.Resolver
	Guard     *guard.Middleware
	Auth      *auth.Handler
	Users     *user.Handler
	Status    *status.Handler
	Analytics *analytics.Handler
	Tracker   *analytics.Tracker
	// NewClientID issues anonymous analytics client ids.
	NewClientID   func() string
	SecureCookies bool
	CORS          cors.Options
}

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/auth/signin", d.Auth.SignIn)
	mux.HandleFunc("POST /api/auth/refresh", d.Auth.Refresh)
	mux.HandleFunc("POST /api/auth/logout", d.Auth.Logout)
	mux.HandleFunc("POST /api/users/signup", d.Users.Signup)

	mux.HandleFunc("GET /api/me/approval", d.Status.Approval)
	mux.HandleFunc("POST /api/me/approval/refetch", d.Status.RefetchApproval)
	mux.HandleFunc("GET /api/me/subscription", d.Status.Subscription)
	mux.HandleFunc("POST /api/me/subscription/refetch", d.Status.RefetchSubscription)

	mux.HandleFunc("POST /api/analytics/track", d.Analytics.Track)

	// guarded pages
	mux.Handle("GET /app/favorites", d.Guard.Require("")(page("Mis favoritos")))
	mux.Handle("GET /app/agent/dashboard", d.Guard.Require("agent")(page("Panel del agente")))
	mux.Handle("GET /app/admin", d.Guard.Require("admin")(page("Administración")))

	var h http.Handler = mux
	h = d.Tracker.PageViews(h)
	h = d.Sessions.Middleware()(h)
	h = analytics.ClientIDs(d.NewClientID, d.SecureCookies)(h)
	h = cors.Handler(d.CORS)(h)
	h = SecurityHeadersMiddleware()(h)
	return LoggingMiddleware(d.Logger)(h)
}

func page(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(title))
	}
}
