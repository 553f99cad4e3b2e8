// Package analytics derives read-model views (averages, trends, histograms, triage and
// exports) from a sequence of already validated readings. Nothing here performs I/O other
// than writing exports to a caller-supplied writer.
package analytics

import (
	"fmt"
	"time"

	"procodus.dev/vitals/pkg/vitals"
)

// Window is a named look-back period for the analytics view.
type Window string

const (
	Window1h  Window = "1h"
	Window6h  Window = "6h"
	Window24h Window = "24h"
	Window7d  Window = "7d"

	// DefaultWindow is used when no window is requested.
	DefaultWindow = Window24h
)

var windowDurations = map[Window]time.Duration{
	Window1h:  time.Hour,
	Window6h:  6 * time.Hour,
	Window24h: 24 * time.Hour,
	Window7d:  7 * 24 * time.Hour,
}

// Windows lists the supported windows in display order.
func Windows() []Window {
	return []Window{Window1h, Window6h, Window24h, Window7d}
}

// ParseWindow resolves a window name. The empty string yields DefaultWindow.
func ParseWindow(s string) (Window, error) {
	if s == "" {
		return DefaultWindow, nil
	}
	w := Window(s)
	if _, ok := windowDurations[w]; !ok {
		return "", fmt.Errorf("unknown time range %q", s)
	}
	return w, nil
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return windowDurations[w]
}

// Since returns the start of the window ending at now.
func (w Window) Since(now time.Time) time.Time {
	return now.Add(-w.Duration())
}

// AllDevices is the device filter value that keeps every reading.
const AllDevices = "ALL"

// FilterByDevice keeps readings from device. "" and AllDevices keep everything.
func FilterByDevice(readings []vitals.Reading, device string) []vitals.Reading {
	if device == "" || device == AllDevices {
		return readings
	}
	out := make([]vitals.Reading, 0, len(readings))
	for _, r := range readings {
		if r.DeviceID == device {
			out = append(out, r)
		}
	}
	return out
}

// Devices returns the distinct device ids in first-seen order.
func Devices(readings []vitals.Reading) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range readings {
		if _, ok := seen[r.DeviceID]; ok {
			continue
		}
		seen[r.DeviceID] = struct{}{}
		out = append(out, r.DeviceID)
	}
	return out
}
