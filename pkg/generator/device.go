// Package generator produces fake wristbands and physiologically plausible vital signs for
// the simulator and the seed command.
package generator

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"procodus.dev/vitals/pkg/vitals"
)

// Wristband describes a simulated device.
type Wristband struct {
	Registered time.Time
	DeviceID   string `fake:"{uuid}"`
	Model      string `fake:"{randomstring:[PulseOne,PulseTwo,VitalBandS,VitalBandPro]}"`
	MacAddress string `fake:"{macaddress}"`
	Firmware   string `fake:"{appversion}"`
	UserID     string `fake:"skip"`
}

// NewWristband returns a wristband with fake metadata owned by userID. Device ids have the
// form wb-xxxxxxxx.
func NewWristband(userID string) *Wristband {
	var w Wristband
	if err := gofakeit.Struct(&w); err != nil {
		return nil
	}
	w.DeviceID = "wb-" + strings.ReplaceAll(w.DeviceID, "-", "")[:8]
	w.UserID = userID
	w.Registered = time.Now().UTC()
	return &w
}

// VitalsGenerator produces a correlated vitals series for one wristband.
type VitalsGenerator struct {
	rng          *rand.Rand
	deviceID     string
	userID       string
	baselineHR   float64
	baselineTemp float64
	baselineSpO2 float64
	noise        float64
	fever        float64 // current fever offset in °C, decays between readings
	withBP       bool
}

// NewVitalsGenerator creates a generator with a random resting profile. The same seed yields
// the same series. When withBP is set readings carry a cuff-style blood pressure, otherwise
// it is left for the server to estimate.
// Note: uses math/rand which is acceptable for simulation data.
func NewVitalsGenerator(deviceID, userID string, seed int64, withBP bool) *VitalsGenerator {
	rng := rand.New(rand.NewSource(seed)) // #nosec G404 - weak random is acceptable for simulation
	return &VitalsGenerator{
		rng:          rng,
		deviceID:     deviceID,
		userID:       userID,
		baselineHR:   62 + rng.Float64()*20,    // 62-82 bpm
		baselineTemp: 36.4 + rng.Float64()*0.5, // 36.4-36.9 °C
		baselineSpO2: 96.5 + rng.Float64()*2.5, // 96.5-99 %
		noise:        1 + rng.Float64()*2,
		withBP:       withBP,
	}
}

// GenerateTemperature with a daily cycle peaking in the late afternoon and occasional fever
// episodes.
func (g *VitalsGenerator) GenerateTemperature(t time.Time) float64 {
	hour := float64(t.Hour())
	dailyCycle := 0.3 * math.Sin((hour-10)*math.Pi/12)

	// Fever onset (2% chance), then decay
	if g.fever < 0.1 && g.rng.Float64() < 0.02 {
		g.fever = 1 + g.rng.Float64()*1.5
	}
	g.fever *= 0.9

	noise := (g.rng.Float64() - 0.5) * 0.2

	return g.baselineTemp + dailyCycle + g.fever + noise
}

// GenerateHeartRate follows temperature: roughly 10 bpm per °C above baseline. Lower at
// night, with rare tachycardia spikes.
func (g *VitalsGenerator) GenerateHeartRate(t time.Time, temperature float64) float64 {
	hour := float64(t.Hour())
	dailyCycle := 6 * math.Sin((hour-9)*math.Pi/12)

	tempEffect := math.Max(0, temperature-g.baselineTemp) * 10

	noise := (g.rng.Float64() - 0.5) * g.noise * 4

	anomaly := 0.0
	if g.rng.Float64() < 0.03 {
		anomaly = 30 + g.rng.Float64()*20
	}

	return g.baselineHR + dailyCycle + tempEffect + noise + anomaly
}

// GenerateSpO2 drops slightly with high heart rates and rarely desaturates.
func (g *VitalsGenerator) GenerateSpO2(heartRate float64) float64 {
	hrEffect := -math.Max(0, heartRate-100) * 0.05

	noise := (g.rng.Float64() - 0.5) * g.noise

	anomaly := 0.0
	if g.rng.Float64() < 0.02 {
		anomaly = -(5 + g.rng.Float64()*7)
	}

	return math.Min(100, g.baselineSpO2+hrEffect+noise+anomaly)
}

// GenerateReading returns one reading at t. Values always lie within the plausibility
// bounds of the range table.
func (g *VitalsGenerator) GenerateReading(t time.Time) vitals.Reading {
	ranges := vitals.DefaultRanges()

	temperature := g.GenerateTemperature(t)
	heartRate := g.GenerateHeartRate(t, temperature)
	spo2 := g.GenerateSpO2(heartRate)

	r := vitals.Reading{
		CreatedAt: t.UTC(),
		DeviceID:  g.deviceID,
		UserID:    g.userID,
		HR:        int(math.Round(clamp(heartRate, ranges.HeartRate.Plausible))),
		Temp:      math.Round(clamp(temperature, ranges.Temperature.Plausible)*10) / 10,
		SpO2:      int(math.Round(clamp(spo2, ranges.SpO2.Plausible))),
	}

	if g.withBP {
		sys, dia := vitals.EstimateBloodPressure(r.HR, r.SpO2)
		bp := ranges.BloodPressure
		r.Systolic = int(clamp(float64(sys)+(g.rng.Float64()-0.5)*8, bp.Systolic.Plausible))
		r.Diastolic = int(clamp(float64(dia)+(g.rng.Float64()-0.5)*6, bp.Diastolic.Plausible))
	}

	return r
}

func clamp(v float64, bounds vitals.Interval) float64 {
	return math.Max(bounds.Min, math.Min(bounds.Max, v))
}
