package metrics

import (
	"math"
	"time"
)

// Durations is a ring of recent durations, used to watch control step timing.
type Durations struct {
	d   []time.Duration
	i   int
	max time.Duration
}

func NewDurations(n int) *Durations {
	if n < 1 {
		n = 1
	}
	return &Durations{d: make([]time.Duration, 0, n)}
}

func (db *Durations) Collect(d time.Duration) {
	if len(db.d) < cap(db.d) {
		db.d = append(db.d, d)
	} else {
		db.d[db.i] = d
		db.i = (db.i + 1) % len(db.d)
	}
	if d > db.max {
		db.max = d
	}
}

func (db *Durations) Count() int { return len(db.d) }

func (db *Durations) Total() time.Duration {
	var total time.Duration
	for _, d := range db.d {
		total += d
	}
	return total
}

func (db *Durations) Average() time.Duration {
	if len(db.d) == 0 {
		return 0
	}
	return time.Duration(math.Round(float64(db.Total()) / float64(db.Count())))
}

// Max is the longest duration collected since the last Reset, including ones
// that have already rotated out of the ring.
func (db *Durations) Max() time.Duration { return db.max }

func (db *Durations) Reset() {
	db.d = db.d[:0]
	db.i = 0
	db.max = 0
}
