package web

import (
	"context"
	"net/http"
	"strings"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/analytics"
	"procodus.dev/vitals/pkg/vitals"
)

func assignedOnly(r *http.Request) bool {
	return r.URL.Query().Get("assigned") == "1"
}

// latestReadings returns the newest reading per patient and device. The database is the
// source of truth; cached entries newer than the stored rows are merged over it so readings
// that have not been persisted yet still show up.
func (s *Server) latestReadings(ctx context.Context, id *auth.Identity, assigned bool) ([]vitals.Reading, error) {
	if assigned {
		ids, err := s.auth.AssignedUserIDs(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		rows, err := s.store.RecentReadingsForUsers(ctx, ids, store.DefaultVolunteerLimit)
		if err != nil {
			return nil, err
		}
		return analytics.LatestPerPatient(store.ToVitals(rows)), nil
	}

	rows, err := s.store.RecentReadingsAll(ctx, store.DefaultVolunteerLimit)
	if err != nil {
		return nil, err
	}
	readings := store.ToVitals(rows)

	if s.cache != nil {
		cached, err := s.cache.All(ctx)
		if err != nil {
			s.logger.Warn("latest-reading cache unavailable, using database only", "error", err)
			if s.metrics != nil {
				s.metrics.CacheFallbacks.Inc()
			}
		} else {
			readings = append(readings, cached...)
		}
	}

	return analytics.LatestPerPatient(readings), nil
}

// patientNames maps user ids to display names. Lookup failures leave the map empty.
func (s *Server) patientNames(ctx context.Context) ([]store.User, map[string]string) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.logger.Warn("failed to list patients", "error", err)
		return nil, map[string]string{}
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		name := u.FullName
		if name == "" {
			name = u.Email
		}
		names[u.ID] = name
	}
	return users, names
}

func (s *Server) loadTriage(ctx context.Context, id *auth.Identity, assigned bool) (*volunteerView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	latest, err := s.latestReadings(ctx, id, assigned)
	if err != nil {
		return nil, err
	}
	users, names := s.patientNames(ctx)

	return &volunteerView{
		Triage:       analytics.Triage(latest),
		Names:        names,
		Users:        users,
		AssignedOnly: assigned,
	}, nil
}

// handleVolunteerDashboard serves the triage overview.
func (s *Server) handleVolunteerDashboard(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	v, err := s.loadTriage(r.Context(), id, assignedOnly(r))
	if err != nil {
		s.renderError(w, r, id, err, "volunteer_dashboard")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()
	if v.Assignments, err = s.auth.Assignments(ctx, id.ID); err != nil {
		s.renderError(w, r, id, err, "volunteer_dashboard")
		return
	}

	v.Refresh = s.config.RefreshInterval
	s.render(w, r, http.StatusOK, "volunteer_dashboard", volunteerPage(id, *v))
}

// handleVolunteerLive serves the triage fragment polled by htmx.
func (s *Server) handleVolunteerLive(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	v, err := s.loadTriage(r.Context(), id, assignedOnly(r))
	if err != nil {
		s.renderError(w, r, id, err, "volunteer_live")
		return
	}
	s.render(w, r, http.StatusOK, "volunteer_live", volunteerLive(v.Triage, v.Names))
}

// handleAssign links the volunteer to a patient.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, id, apperr.Wrap(apperr.KindValidation, "invalid form", err), "assignments")
		return
	}
	userID := strings.TrimSpace(r.PostForm.Get("user_id"))
	if userID == "" {
		s.renderError(w, r, id, apperr.New(apperr.KindValidation, "choose a patient to assign"), "assignments")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	if err := s.auth.AssignVolunteer(ctx, id.ID, userID, r.PostForm.Get("notes")); err != nil {
		s.renderError(w, r, id, err, "assignments")
		return
	}

	s.logger.Info("patient assigned", "volunteer_id", id.ID, "user_id", userID)
	http.Redirect(w, r, "/volunteer/dashboard", http.StatusSeeOther)
}

// handleUnassign removes an assignment. The empty 200 lets htmx drop the list entry.
func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	userID := r.PathValue("userID")

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	if err := s.auth.RemoveAssignment(ctx, id.ID, userID); err != nil {
		s.renderError(w, r, id, err, "assignments")
		return
	}

	s.logger.Info("patient unassigned", "volunteer_id", id.ID, "user_id", userID)
	w.WriteHeader(http.StatusOK)
}
