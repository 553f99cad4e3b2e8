package web

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"procodus.dev/vitals/internal/auth"
	"procodus.dev/vitals/internal/feed"
	"procodus.dev/vitals/pkg/metrics"
)

// Event names carried by the streams. The htmx sse extension swaps on them.
const (
	eventVitals = "vitals"
	eventTriage = "triage"
)

// handlePatientEvents streams the dashboard fragment whenever the patient's readings change.
func (s *Server) handlePatientEvents(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	s.stream(w, r, id.ID, eventVitals, func(ctx context.Context) (templ.Component, error) {
		readings, err := s.recentReadings(ctx, id.ID)
		if err != nil {
			return nil, err
		}
		return dashboardLive(readings), nil
	})
}

// handleVolunteerEvents streams the triage fragment whenever any reading arrives.
func (s *Server) handleVolunteerEvents(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	assigned := assignedOnly(r)
	s.stream(w, r, "", eventTriage, func(ctx context.Context) (templ.Component, error) {
		v, err := s.loadTriage(ctx, id, assigned)
		if err != nil {
			return nil, err
		}
		return volunteerLive(v.Triage, v.Names), nil
	})
}

// stream serves a server-sent event stream. A fragment is sent straight away and then on
// every change event for userID ("" for every user) or poll tick, whichever comes first.
// Failed loads are skipped so one slow query does not end the stream.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, userID, event string, load func(context.Context) (templ.Component, error)) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("failed to clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("event stream not supported", "error", err)
		return
	}

	if s.metrics != nil {
		s.metrics.LiveStreams.Inc()
		defer s.metrics.LiveStreams.Dec()
	}

	sub := s.hub.Subscribe(r.Context(), feed.Options{UserID: userID, PollInterval: s.config.RefreshInterval})
	defer sub.Close()

	err := feed.Run(r.Context(), sub, func(ctx context.Context) error {
		c, err := load(ctx)
		if err != nil {
			s.countRefresh(err)
			s.logger.Warn("failed to refresh event stream", "event", event, "error", err)
			return nil
		}

		var buf bytes.Buffer
		if err := c.Render(ctx, &buf); err != nil {
			return err
		}
		if err := writeEvent(w, event, buf.Bytes()); err != nil {
			return err
		}
		s.countRefresh(nil)
		return rc.Flush()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("event stream ended", "event", event, "error", err)
	}
}

func (s *Server) countRefresh(err error) {
	if s.metrics != nil {
		s.metrics.LiveRefreshes.WithLabelValues(metrics.StatusLabel(err)).Inc()
	}
}

// writeEvent writes one server-sent event, splitting data into data: lines.
func writeEvent(w io.Writer, event string, data []byte) error {
	var b bytes.Buffer
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n")) {
		b.WriteString("data: ")
		b.Write(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	_, err := w.Write(b.Bytes())
	return err
}
