package rpc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Solver defaults.
const (
	DefaultMaxIterations = 10
	DefaultTolerance     = 1e-3 // pixels
	DefaultGain          = 1e-5 // degrees per pixel of residual

	jacobianStep = 1e-6 // fraction of LatScale / LonScale
)

// HeightFunc returns the terrain height in metres at (lat, lon).
type HeightFunc func(lat, lon float64) float64

// Method selects the update rule used by the inverse solver.
type Method int

const (
	// MethodNewton solves the 2x2 linearised system built from a
	// finite-difference Jacobian of Project on every iteration.
	MethodNewton Method = iota
	// MethodFixedStep adds the pixel residual times Gain to (lat, lon).
	// It converges only when the model is close to one pixel per Gain
	// degrees near the scene centre.
	MethodFixedStep
)

func (m Method) String() string {
	switch m {
	case MethodNewton:
		return "newton"
	case MethodFixedStep:
		return "fixed-step"
	default:
		return "unknown"
	}
}

// ParseMethod returns the Method named s ("newton", "fixed-step" or "fixed").
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "newton", "":
		return MethodNewton, true
	case "fixed-step", "fixed", "fixedstep":
		return MethodFixedStep, true
	}
	return MethodNewton, false
}

// Solver inverts an RPC model: given (line, sample) and a height source it
// estimates (lat, lon). Zero-valued fields take the package defaults.
type Solver struct {
	Model         *Model
	Method        Method
	MaxIterations int
	Tolerance     float64
	Gain          float64
}

// Result describes one inversion.
type Result struct {
	Lat, Lon, Height float64
	Iterations       int
	// Residuals are target minus projected, in pixels, at the returned
	// estimate when available.
	ResidualLine   float64
	ResidualSample float64
	Converged      bool
	// Degenerate is set when a projection hit a near-zero denominator;
	// Lat/Lon then hold the last good estimate.
	Degenerate bool
}

// NewSolver returns a Solver for m with default parameters.
func NewSolver(m *Model) *Solver {
	return &Solver{
		Model:         m,
		Method:        MethodNewton,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		Gain:          DefaultGain,
	}
}

func (s *Solver) params() (maxIter int, tol, gain float64) {
	maxIter, tol, gain = s.MaxIterations, s.Tolerance, s.Gain
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}
	if gain == 0 {
		gain = DefaultGain
	}
	return maxIter, tol, gain
}

// Invert returns the estimated (lat, lon) of an image position. It never
// fails; use Solve to inspect convergence.
func (s *Solver) Invert(line, sample float64, height HeightFunc) (lat, lon float64) {
	r := s.Solve(line, sample, height)
	return r.Lat, r.Lon
}

// Solve iterates from the scene centre (LAT_OFFSET, LONG_OFFSET) for at most
// MaxIterations steps. The result is a pure function of its inputs.
func (s *Solver) Solve(line, sample float64, height HeightFunc) Result {
	maxIter, tol, gain := s.params()
	c := &s.Model.c

	r := Result{Lat: c.LatOffset, Lon: c.LonOffset}
	within := func() bool {
		return math.Abs(r.ResidualLine) < tol && math.Abs(r.ResidualSample) < tol
	}

	for r.Iterations < maxIter {
		r.Iterations++
		r.Height = height(r.Lat, r.Lon)
		pl, ps, err := s.Model.Project(r.Lat, r.Lon, r.Height)
		if err != nil {
			r.Degenerate = true
			return r
		}
		r.ResidualLine = line - pl
		r.ResidualSample = sample - ps

		if s.Method == MethodFixedStep {
			r.Lat += r.ResidualLine * gain
			r.Lon += r.ResidualSample * gain
			if within() {
				r.Converged = true
				break
			}
			continue
		}

		if within() {
			r.Converged = true
			return r
		}
		dLat, dLon, ok := s.newtonStep(r.Lat, r.Lon, r.Height, pl, ps, r.ResidualLine, r.ResidualSample)
		if !ok {
			dLat, dLon = r.ResidualLine*gain, r.ResidualSample*gain
		}
		r.Lat += dLat
		r.Lon += dLon
	}

	// The last update moved the estimate; report the residual where we
	// actually ended up.
	if r.Iterations > 0 {
		h := height(r.Lat, r.Lon)
		pl, ps, err := s.Model.Project(r.Lat, r.Lon, h)
		if err != nil {
			r.Degenerate = true
			return r
		}
		r.Height = h
		r.ResidualLine = line - pl
		r.ResidualSample = sample - ps
		if !r.Converged {
			r.Converged = within()
		}
	}
	return r
}

// newtonStep solves J·(dLat, dLon) = (dLine, dSample) where J is the forward
// difference Jacobian of Project at (lat, lon, h). ok is false when the
// system is singular or a trial projection is degenerate.
func (s *Solver) newtonStep(lat, lon, h, line0, samp0, dLine, dSample float64) (dLat, dLon float64, ok bool) {
	c := &s.Model.c
	stepLat := jacobianStep * math.Abs(c.LatScale)
	stepLon := jacobianStep * math.Abs(c.LonScale)

	l1, s1, err := s.Model.Project(lat+stepLat, lon, h)
	if err != nil {
		return 0, 0, false
	}
	l2, s2, err := s.Model.Project(lat, lon+stepLon, h)
	if err != nil {
		return 0, 0, false
	}

	J := mat.NewDense(2, 2, []float64{
		(l1 - line0) / stepLat, (l2 - line0) / stepLon,
		(s1 - samp0) / stepLat, (s2 - samp0) / stepLon,
	})
	b := mat.NewVecDense(2, []float64{dLine, dSample})

	var x mat.VecDense
	if err := x.SolveVec(J, b); err != nil {
		return 0, 0, false
	}
	dLat, dLon = x.AtVec(0), x.AtVec(1)
	if math.IsNaN(dLat) || math.IsNaN(dLon) || math.IsInf(dLat, 0) || math.IsInf(dLon, 0) {
		return 0, 0, false
	}
	return dLat, dLon, true
}
