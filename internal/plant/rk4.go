package plant

// derivFunc writes dx/dt for state x into dx.
type derivFunc func(x, dx []float64)

// rk4 is a classic fourth-order Runge-Kutta stepper that reuses its scratch
// buffers between steps.
type rk4 struct {
	k1, k2, k3, k4 []float64
	scratch        []float64
}

func (r *rk4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make([]float64, n)
		r.k2 = make([]float64, n)
		r.k3 = make([]float64, n)
		r.k4 = make([]float64, n)
		r.scratch = make([]float64, n)
	}
}

// step advances x in place by dt.
func (r *rk4) step(f derivFunc, x []float64, dt float64) {
	n := len(x)
	r.ensureScratch(n)

	f(x, r.k1)
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	f(r.scratch, r.k2)
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	f(r.scratch, r.k3)
	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	f(r.scratch, r.k4)

	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		x[i] += dt6 * (r.k1[i] + 2*r.k2[i] + 2*r.k3[i] + r.k4[i])
	}
}
