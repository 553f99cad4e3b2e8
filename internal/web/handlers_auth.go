package web

import (
	"context"
	"net/http"
	"strings"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/store"
)

// handleIndex serves the landing page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("handling index request")
	s.render(w, r, http.StatusOK, "index", landingPage())
}

func (s *Server) handleAuthPage(flow authFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, "auth", authPage(authView{Role: flow.role}))
	}
}

func (s *Server) handleSignIn(flow authFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.renderAuthError(w, r, flow, authView{}, apperr.Wrap(apperr.KindValidation, "invalid form", err))
			return
		}
		email := strings.TrimSpace(r.PostForm.Get("email"))
		password := r.PostForm.Get("password")

		ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
		defer cancel()

		var (
			sess *auth.Session
			err  error
		)
		if flow.role == store.RoleVolunteer {
			sess, err = s.auth.SignInVolunteer(ctx, email, password)
		} else {
			sess, err = s.auth.SignInPatient(ctx, email, password)
		}
		if err != nil {
			s.renderAuthError(w, r, flow, authView{Email: email}, err)
			return
		}

		s.logger.Info("signed in", "role", string(flow.role), "subject_id", sess.Identity.ID)
		s.setSessionCookie(w, flow.cookie, sess)
		http.Redirect(w, r, flow.home, http.StatusSeeOther)
	}
}

func (s *Server) handleSignUp(flow authFlow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.renderAuthError(w, r, flow, authView{}, apperr.Wrap(apperr.KindValidation, "invalid form", err))
			return
		}
		name := strings.TrimSpace(r.PostForm.Get("name"))
		email := strings.TrimSpace(r.PostForm.Get("email"))
		password := r.PostForm.Get("password")

		ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
		defer cancel()

		var (
			sess *auth.Session
			err  error
		)
		if flow.role == store.RoleVolunteer {
			sess, err = s.auth.SignUpVolunteer(ctx, name, email, password)
		} else {
			sess, err = s.auth.SignUpPatient(ctx, email, password, name)
		}
		if err != nil {
			s.renderAuthError(w, r, flow, authView{Email: email, Name: name, SignUp: true}, err)
			return
		}

		s.logger.Info("signed up", "role", string(flow.role), "subject_id", sess.Identity.ID)
		s.setSessionCookie(w, flow.cookie, sess)
		http.Redirect(w, r, flow.home, http.StatusSeeOther)
	}
}

// renderAuthError re-renders the sign-in page with the failure. Credential and input
// problems stay on the form; anything else becomes an error banner.
func (s *Server) renderAuthError(w http.ResponseWriter, r *http.Request, flow authFlow, v authView, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindAuthentication, apperr.KindValidation:
		if s.metrics != nil {
			s.metrics.AuthFailures.WithLabelValues(string(flow.role)).Inc()
		}
		v.Role = flow.role
		v.Error = apperr.Message(err)
		s.render(w, r, apperr.HTTPStatus(err), "auth", authPage(v))
	default:
		s.renderError(w, r, nil, err, "auth")
	}
}

// handleLogout ends every session carried by the request.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{PatientCookie, VolunteerCookie} {
		c, err := r.Cookie(name)
		if err != nil {
			continue
		}
		if err := s.auth.SignOut(r.Context(), c.Value); err != nil {
			s.logger.Warn("failed to delete session", "cookie", name, "error", err)
		}
		clearCookie(w, name)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
