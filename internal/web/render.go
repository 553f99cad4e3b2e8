package web

import (
	"bytes"
	"net/http"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/vitals/pkg/metrics"
)

// render writes c with the given status. The component is rendered into a buffer first so a
// failing template yields a clean 500 instead of half a page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, c templ.Component) {
	var buf bytes.Buffer
	//nolint:contextcheck // Context is passed to Templ's Render method
	err := trackTemplateRender(s.metrics, name, func() error {
		return c.Render(r.Context(), &buf)
	})
	if err != nil {
		s.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("failed to write response", "template", name, "error", err)
	}
}

// trackTemplateRender wraps template rendering with metrics tracking.
func trackTemplateRender(m *metrics.WebMetrics, templateName string, renderFunc func() error) error {
	// If metrics not enabled, just render
	if m == nil {
		return renderFunc()
	}

	// Track duration
	timer := prometheus.NewTimer(m.TemplateRenderTime.WithLabelValues(templateName))
	defer timer.ObserveDuration()

	// Render template
	err := renderFunc()

	// Track errors
	if err != nil {
		m.TemplateRenderErrors.WithLabelValues(templateName).Inc()
		return err
	}

	return nil
}
