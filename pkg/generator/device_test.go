package generator_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/vitals/pkg/generator"
	"procodus.dev/vitals/pkg/vitals"
)

var _ = Describe("Wristband", func() {
	It("should create a wristband owned by the user", func() {
		w := generator.NewWristband("user-1")
		Expect(w).NotTo(BeNil())
		Expect(w.UserID).To(Equal("user-1"))
		Expect(w.DeviceID).To(MatchRegexp(`^wb-[0-9a-f]{8}$`))
		Expect(w.MacAddress).NotTo(BeEmpty())
		Expect(w.Model).To(BeElementOf("PulseOne", "PulseTwo", "VitalBandS", "VitalBandPro"))
	})

	It("should give every wristband its own id", func() {
		seen := map[string]bool{}
		for range 20 {
			w := generator.NewWristband("user-1")
			Expect(seen).NotTo(HaveKey(w.DeviceID))
			seen[w.DeviceID] = true
		}
	})
})

var _ = Describe("VitalsGenerator", func() {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	It("should stay within plausibility bounds", func() {
		g := generator.NewVitalsGenerator("wb-0001", "user-1", 42, true)
		for i := range 2000 {
			r := g.GenerateReading(start.Add(time.Duration(i) * time.Minute))
			Expect(vitals.Validate(r.HR, r.Temp, r.SpO2)).To(Succeed())
			Expect(vitals.ValidateBloodPressure(r.Systolic, r.Diastolic)).To(Succeed())
		}
	})

	It("should label readings with the device and user", func() {
		r := generator.NewVitalsGenerator("wb-0001", "user-1", 1, false).GenerateReading(start)
		Expect(r.DeviceID).To(Equal("wb-0001"))
		Expect(r.UserID).To(Equal("user-1"))
		Expect(r.CreatedAt).To(Equal(start))
	})

	It("should leave blood pressure to the server unless asked", func() {
		r := generator.NewVitalsGenerator("wb-0001", "user-1", 1, false).GenerateReading(start)
		Expect(r.Systolic).To(BeZero())
		Expect(r.Diastolic).To(BeZero())
	})

	It("should round temperature to one decimal", func() {
		g := generator.NewVitalsGenerator("wb-0001", "user-1", 7, false)
		for i := range 50 {
			r := g.GenerateReading(start.Add(time.Duration(i) * time.Minute))
			Expect(r.Temp*10).To(BeNumerically("~", float64(int(r.Temp*10+0.5)), 1e-6))
		}
	})

	It("should repeat a series for the same seed", func() {
		a := generator.NewVitalsGenerator("wb-0001", "user-1", 99, true)
		b := generator.NewVitalsGenerator("wb-0001", "user-1", 99, true)
		for i := range 100 {
			t := start.Add(time.Duration(i) * time.Minute)
			Expect(a.GenerateReading(t)).To(Equal(b.GenerateReading(t)))
		}
	})

	It("should mostly produce normal resting values", func() {
		g := generator.NewVitalsGenerator("wb-0001", "user-1", 3, false)
		var hr, spo2 float64
		const n = 1000
		for i := range n {
			r := g.GenerateReading(start.Add(time.Duration(i) * time.Minute))
			hr += float64(r.HR)
			spo2 += float64(r.SpO2)
		}
		Expect(hr / n).To(BeNumerically("~", 75, 20))
		Expect(spo2 / n).To(BeNumerically(">", 93))
	})
})
