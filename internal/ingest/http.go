package ingest

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"procodus.dev/vitals/internal/apperr"
)

// Response bodies of the ingestion endpoint.
const (
	MsgInvalidRequest = "Missing or invalid parameters (device_id, user_id, and valid vital signs required)"
	MsgDatabaseError  = "Database error"
	MsgInternalError  = "Internal server error"
)

var (
	intPrefix   = regexp.MustCompile(`^\s*[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// ParseInt reads the leading integer of s, ignoring anything after it, so "72.9" and "72bpm"
// both give 72. Anything without a leading integer gives 0.
func ParseInt(s string) int {
	m := intPrefix.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(m))
	if err != nil {
		return 0
	}
	return n
}

// ParseFloat reads the leading decimal number of s. Anything without one gives 0.
func ParseFloat(s string) float64 {
	m := floatPrefix.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0
	}
	return f
}

// RequestFromQuery maps the query parameters of GET /api/data onto a Request.
func RequestFromQuery(r *http.Request) Request {
	q := r.URL.Query()
	return Request{
		DeviceID:  q.Get("id"),
		UserID:    q.Get("user_id"),
		Source:    SourceHTTP,
		HR:        ParseInt(q.Get("hr")),
		Temp:      ParseFloat(q.Get("temp")),
		SpO2:      ParseInt(q.Get("spo2")),
		Systolic:  ParseInt(q.Get("bp_sys")),
		Diastolic: ParseInt(q.Get("bp_dia")),
	}
}

// HTTPHandler serves GET /api/data.
func (s *Service) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := s.Ingest(r.Context(), RequestFromQuery(r))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		case apperr.Is(err, apperr.KindValidation):
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": MsgInvalidRequest})
		case apperr.Is(err, apperr.KindPersistence), apperr.Is(err, apperr.KindTimeout):
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": MsgDatabaseError})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": MsgInternalError})
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
