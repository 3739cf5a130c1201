package audit

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"finboard/internal/auth"
	"finboard/internal/models"
)

// DetailsFunc extracts route-specific detail fields from the request. It
// runs after the handler, so it must only read the URL and headers, never
// the body.
type DetailsFunc func(r *http.Request) map[string]string

// Observe returns route middleware that records the action once the
// response is written. Only successful responses from authenticated
// principals leave a trace; rejected and failed requests do not.
func (r *Recorder) Observe(action string, details DetailsFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

			next.ServeHTTP(ww, req)

			if ww.Status() < 200 || ww.Status() >= 300 {
				return
			}
			principal, ok := auth.PrincipalFrom(req.Context())
			if !ok {
				return
			}

			var detail map[string]string
			if details != nil {
				detail = details(req)
			}

			r.Record(&models.ActivityEntry{
				UserID:    principal.UserID,
				Action:    action,
				Details:   detail,
				Email:     principal.Email,
				FirstName: principal.FirstName,
				LastName:  principal.LastName,
				IP:        clientIP(req),
				UserAgent: req.UserAgent(),
				CreatedAt: time.Now().UTC(),
			})
		})
	}
}

func clientIP(r *http.Request) string {
	// RealIP middleware rewrites RemoteAddr; it may or may not carry a port.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
