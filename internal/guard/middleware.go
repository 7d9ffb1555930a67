package guard

import (
	"html/template"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-realty-access/internal/session"
)

var accessDeniedPage = template.Must(template.New("denied").Parse(`<!doctype html>
<html lang="es">
<head><meta charset="utf-8"><title>Acceso Denegado</title></head>
<body>
<h1>Acceso Denegado</h1>
<p>No tienes permisos para acceder a esta página.</p>
<p><a href="{{.}}">Volver al inicio</a></p>
</body>
</html>
`))

// Middleware executes guard decisions over HTTP.
type Middleware struct {
	dest   Destinations
	logger *zap.SugaredLogger
}

func NewMiddleware(dest Destinations, logger *zap.SugaredLogger) *Middleware {
	return &Middleware{dest: dest, logger: logger}
}

// Require protects next. An empty role only requires a signed-in user.
func (m *Middleware) Require(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := m.dest.Evaluate(role, session.FromContext(r.Context()))
			switch d.State {
			case StateAuthorized:
				next.ServeHTTP(w, r)
			case StateLoading:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "loading", http.StatusServiceUnavailable)
			case StateUnauthenticated:
				target := d.Redirect.Path
				if r.Method == http.MethodGet {
					target = withNext(target, r.URL.RequestURI())
				}
				http.Redirect(w, r, target, http.StatusFound)
			case StateForbidden:
				m.logger.Debugw("route forbidden", "path", r.URL.Path, "required_role", role)
				w.Header().Set("Refresh", "0; url="+d.Redirect.Path)
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				if err := accessDeniedPage.Execute(w, d.Redirect.Path); err != nil {
					m.logger.Warnw("render access denied", "err", err)
				}
			}
		})
	}
}

// withNext sets the next query parameter on path, keeping any query it
// already has.
func withNext(path, next string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set("next", next)
	u.RawQuery = q.Encode()
	return u.String()
}
