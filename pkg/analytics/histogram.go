package analytics

import (
	"strconv"

	"procodus.dev/vitals/pkg/vitals"
)

// Bucket is one heart-rate histogram bin.
type Bucket struct {
	Label string
	Lower int
	// Upper is exclusive; 0 marks the open-ended top bucket.
	Upper int
	Count int
}

var heartRateEdges = []int{50, 60, 70, 80, 90, 100, 110, 120}

// HeartRateHistogram counts readings per 10 bpm bucket: 0-49, 50-59 … 110-119 and 120+.
func HeartRateHistogram(readings []vitals.Reading) []Bucket {
	buckets := make([]Bucket, 0, len(heartRateEdges)+1)
	lower := 0
	for _, upper := range heartRateEdges {
		buckets = append(buckets, Bucket{
			Label: strconv.Itoa(lower) + "-" + strconv.Itoa(upper-1),
			Lower: lower,
			Upper: upper,
		})
		lower = upper
	}
	buckets = append(buckets, Bucket{Label: strconv.Itoa(lower) + "+", Lower: lower})

	for _, r := range readings {
		for i := range buckets {
			b := &buckets[i]
			if r.HR >= b.Lower && (b.Upper == 0 || r.HR < b.Upper) {
				b.Count++
				break
			}
		}
	}

	return buckets
}
