package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"procodus.dev/vitals/internal/apperr"
	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/store"
	"procodus.dev/vitals/pkg/analytics"
	"procodus.dev/vitals/pkg/vitals"
)

const (
	exportCSV  = "csv"
	exportXLSX = "xlsx"

	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *Server) recentReadings(ctx context.Context, userID string) ([]vitals.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	rows, err := s.store.RecentReadings(ctx, userID, store.DefaultPatientLimit)
	if err != nil {
		return nil, err
	}
	return store.ToVitals(rows), nil
}

// handleDashboard serves the patient dashboard with the latest readings.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	readings, err := s.recentReadings(r.Context(), id.ID)
	if err != nil {
		s.renderError(w, r, id, err, "dashboard")
		return
	}
	s.render(w, r, http.StatusOK, "dashboard", dashboardPage(id, readings, s.config.RefreshInterval))
}

// handleDashboardLive serves the dashboard fragment polled by htmx.
func (s *Server) handleDashboardLive(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	readings, err := s.recentReadings(r.Context(), id.ID)
	if err != nil {
		s.renderError(w, r, id, err, "dashboard_live")
		return
	}
	s.render(w, r, http.StatusOK, "dashboard_live", dashboardLive(readings))
}

// analyticsQuery is a resolved analytics request.
type analyticsQuery struct {
	Window   analytics.Window
	Device   string
	All      []vitals.Reading
	Filtered []vitals.Reading
}

func (s *Server) loadAnalytics(r *http.Request, id *auth.Identity) (*analyticsQuery, error) {
	q := r.URL.Query()
	window, err := analytics.ParseWindow(q.Get("range"))
	if err != nil {
		return nil, apperr.Validation(err)
	}
	device := q.Get("device")
	if device == "" {
		device = analytics.AllDevices
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	rows, err := s.store.ListReadingsSince(ctx, id.ID, window.Since(s.now()))
	if err != nil {
		return nil, err
	}

	all := store.ToVitals(rows)
	return &analyticsQuery{
		Window:   window,
		Device:   device,
		All:      all,
		Filtered: analytics.FilterByDevice(all, device),
	}, nil
}

// handleAnalytics serves statistics for a time window and device filter.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	q, err := s.loadAnalytics(r, id)
	if err != nil {
		s.renderError(w, r, id, err, "analytics")
		return
	}

	s.render(w, r, http.StatusOK, "analytics", analyticsPage(id, analyticsView{
		Window:    q.Window,
		Device:    q.Device,
		Devices:   analytics.Devices(q.All),
		Summary:   analytics.Summarize(q.Filtered),
		Histogram: analytics.HeartRateHistogram(q.Filtered),
	}))
}

// handleExport downloads the filtered analytics readings.
func (s *Server) handleExport(format string) identityHandler {
	return func(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
		q, err := s.loadAnalytics(r, id)
		if err != nil {
			s.renderError(w, r, id, err, "export")
			return
		}

		var (
			buf         bytes.Buffer
			contentType string
		)
		switch format {
		case exportXLSX:
			contentType = contentTypeXLSX
			err = analytics.WriteXLSX(&buf, q.Filtered)
		default:
			contentType = "text/csv; charset=utf-8"
			err = analytics.WriteCSV(&buf, q.Filtered)
		}
		if err != nil {
			s.renderError(w, r, id, fmt.Errorf("failed to export readings: %w", err), "export")
			return
		}

		if s.metrics != nil {
			s.metrics.Exports.WithLabelValues(format).Inc()
		}

		filename := analytics.ExportFilename(s.now(), format)
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.WriteHeader(http.StatusOK)
		if _, err := buf.WriteTo(w); err != nil {
			s.logger.Debug("failed to write export", "error", err)
		}
	}
}

// handleProfile shows the patient's profile form.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	p, err := s.store.Profile(ctx, id.ID)
	if apperr.Is(err, apperr.KindNotFound) {
		p, err = &store.Profile{UserID: id.ID, FullName: id.Name}, nil
	}
	if err != nil {
		s.renderError(w, r, id, err, "profile")
		return
	}

	s.render(w, r, http.StatusOK, "profile", profilePage(id, profileView{
		Profile: p,
		Saved:   r.URL.Query().Get("saved") == "1",
	}))
}

// handleSaveProfile stores the submitted profile.
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, id, apperr.Wrap(apperr.KindValidation, "invalid form", err), "profile")
		return
	}

	p, err := profileFromForm(r, id.ID)
	if err != nil {
		s.render(w, r, http.StatusBadRequest, "profile", profilePage(id, profileView{
			Profile: p,
			Error:   apperr.Message(err),
		}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.QueryTimeout)
	defer cancel()

	if err := s.store.SaveProfile(ctx, p); err != nil {
		s.renderError(w, r, id, err, "profile")
		return
	}

	s.logger.Info("profile updated", "user_id", id.ID)
	http.Redirect(w, r, "/dashboard/profile?saved=1", http.StatusSeeOther)
}

// profileFromForm parses the profile form. The returned profile holds whatever parsed even
// when err is set, so the form can be shown again.
func profileFromForm(r *http.Request, userID string) (*store.Profile, error) {
	f := func(name string) string { return strings.TrimSpace(r.PostForm.Get(name)) }

	p := &store.Profile{
		UserID:           userID,
		FullName:         f("full_name"),
		Gender:           f("gender"),
		BloodGroup:       f("blood_group"),
		ExistingDiseases: f("existing_diseases"),
		Medications:      f("medications"),
		Allergies:        f("allergies"),
		FamilyHistory:    f("family_history"),
		Smoking:          f("smoking"),
		Alcohol:          f("alcohol"),
		Diet:             f("diet"),
		Exercise:         f("exercise"),
		Phone:            f("phone"),
		Address:          f("address"),
		Occupation:       f("occupation"),
		City:             f("city"),
		Region:           f("region"),
		Country:          f("country"),
	}

	var err error
	if p.Age, err = formInt(f("age"), "age", 0, 150); err != nil {
		return p, err
	}
	if p.Height, err = formFloat(f("height"), "height", 0, 300); err != nil {
		return p, err
	}
	if p.Weight, err = formFloat(f("weight"), "weight", 0, 500); err != nil {
		return p, err
	}
	if p.SleepHours, err = formFloat(f("sleep_hours"), "sleep hours", 0, 24); err != nil {
		return p, err
	}

	if dob := f("date_of_birth"); dob != "" {
		t, perr := time.Parse(time.DateOnly, dob)
		if perr != nil {
			return p, apperr.Wrap(apperr.KindValidation, "date of birth must be YYYY-MM-DD", perr)
		}
		p.DateOfBirth = &t
	}

	return p, nil
}

func formInt(v, field string, lo, hi int) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, apperr.New(apperr.KindValidation, fmt.Sprintf("%s must be a whole number between %d and %d", field, lo, hi))
	}
	return n, nil
}

func formFloat(v, field string, lo, hi float64) (float64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < lo || n > hi {
		return 0, apperr.New(apperr.KindValidation, fmt.Sprintf("%s must be a number between %g and %g", field, lo, hi))
	}
	return n, nil
}
