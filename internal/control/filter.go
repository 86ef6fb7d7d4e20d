package control

// Smoother is a single-pole exponential filter, F' = F + α·(raw − F).
type Smoother struct {
	alpha  float64
	value  float64
	seeded bool
}

func NewSmoother(alpha float64) *Smoother {
	s := &Smoother{}
	s.SetAlpha(alpha)
	return s
}

// SetAlpha clamps alpha into (0, 1]; a non-positive alpha would freeze the
// filter forever.
func (s *Smoother) SetAlpha(alpha float64) {
	s.alpha = Clamp(alpha, MinAlpha, 1)
}

func (s *Smoother) Alpha() float64 { return s.alpha }

// Reset parks the filter at seed. The next Update adopts the raw
// measurement directly instead of blending it with seed.
func (s *Smoother) Reset(seed float64) {
	s.value = seed
	s.seeded = false
}

func (s *Smoother) Update(raw float64) float64 {
	if !s.seeded {
		s.value = raw
		s.seeded = true
		return s.value
	}
	s.value += s.alpha * (raw - s.value)
	return s.value
}

func (s *Smoother) Value() float64 { return s.value }
