package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/store"
)

// Session cookie names.
const (
	PatientCookie   = "vitals_session"
	VolunteerCookie = "vitals_volunteer"
)

// authFlow describes the sign-in surface of one role.
type authFlow struct {
	role   store.Role
	cookie string
	page   string
	home   string
}

var (
	patientFlow   = authFlow{role: store.RolePatient, cookie: PatientCookie, page: "/auth", home: "/dashboard"}
	volunteerFlow = authFlow{role: store.RoleVolunteer, cookie: VolunteerCookie, page: "/volunteer/auth", home: "/volunteer/dashboard"}
)

func flowFor(role store.Role) authFlow {
	if role == store.RoleVolunteer {
		return volunteerFlow
	}
	return patientFlow
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the flusher of the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument records request counts, latency and in-flight requests per route pattern.
func (s *Server) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			mux.ServeHTTP(w, r)
			return
		}

		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}

		inFlight := s.metrics.HTTPRequestsInFlight.WithLabelValues(r.Method, pattern)
		inFlight.Inc()
		defer inFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		mux.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type identityHandler func(w http.ResponseWriter, r *http.Request, id *auth.Identity)

// requireRole resolves the role's session cookie and sends anonymous visitors to the role's
// sign-in page.
func (s *Server) requireRole(role store.Role, next identityHandler) http.HandlerFunc {
	flow := flowFor(role)
	return func(w http.ResponseWriter, r *http.Request) {
		var token string
		if c, err := r.Cookie(flow.cookie); err == nil {
			token = c.Value
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
		id, err := s.auth.Authenticate(ctx, token, role)
		cancel()

		if err != nil {
			if apperr.Is(err, apperr.KindAuthentication) {
				if token != "" {
					clearCookie(w, flow.cookie)
				}
				s.redirect(w, r, flow.page)
				return
			}
			s.renderError(w, r, nil, err, "session")
			return
		}

		next(w, r, id)
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends a 303, or an HX-Redirect for htmx requests so the whole page navigates.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, name string, sess *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// renderError shows err as a banner. Timeouts carry a retry link back to the same URL.
// htmx requests get the banner alone so it can be swapped into the page.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, id *auth.Identity, err error, view string) {
	status := apperr.HTTPStatus(err)

	var message, retry string
	switch apperr.KindOf(err) {
	case apperr.KindTimeout:
		message = "The request took too long to complete."
		retry = r.URL.RequestURI()
		if s.metrics != nil {
			s.metrics.QueryTimeouts.WithLabelValues(view).Inc()
		}
		s.logger.Warn("view query timed out", "view", view, "error", err)
	case apperr.KindValidation, apperr.KindPersistence, apperr.KindNotFound:
		message = apperr.Message(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("view failed", "view", view, "error", err)
		}
	default:
		message = "Internal server error"
		s.logger.Error("view failed", "view", view, "error", err)
	}

	if isHTMX(r) {
		s.render(w, r, status, "error_banner", errorBanner(message, retry))
		return
	}
	s.render(w, r, status, "error", errorPage(id, message, retry))
}
