package analysis

import (
	"math"

	"github.com/san-kum/seesaw/internal/sampling"
)

// Response summarizes how the error decayed from its initial value.
type Response struct {
	InitialError float64 `json:"initial_error"`
	RiseMs       int64   `json:"rise_ms"`   // first time |error| fell to 10% of the initial error, -1 if never
	Overshoot    float64 `json:"overshoot"` // largest excursion past the setpoint, as a fraction of the initial error
	SettleMs     int64   `json:"settle_ms"` // time after which |error| stays within the band, -1 if never
	Band         float64 `json:"band"`
}

// StepResponse measures the run against a settling band of ±band counts.
func StepResponse(samples []sampling.Sample, band float64) Response {
	r := Response{RiseMs: -1, SettleMs: -1, Band: band}
	if len(samples) == 0 {
		return r
	}

	start := samples[0].OffsetMs
	e0 := samples[0].Error
	r.InitialError = e0

	if math.Abs(e0) > 0 {
		for _, s := range samples {
			if math.Abs(s.Error) <= 0.1*math.Abs(e0) {
				r.RiseMs = int64(s.OffsetMs - start)
				break
			}
		}
		peak := 0.0
		for _, s := range samples {
			if s.Error*e0 < 0 {
				peak = math.Max(peak, math.Abs(s.Error))
			}
		}
		if ratio := peak / math.Abs(e0); isFinite(ratio) {
			r.Overshoot = ratio
		}
	}

	settled := -1
	for i := len(samples) - 1; i >= 0; i-- {
		if math.Abs(samples[i].Error) > band {
			break
		}
		settled = i
	}
	if settled >= 0 {
		r.SettleMs = int64(samples[settled].OffsetMs - start)
	}
	return r
}
