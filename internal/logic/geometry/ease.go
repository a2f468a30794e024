package geometry

import "math"

// CubicBezier is a timing curve through (0,0), (X1,Y1), (X2,Y2), (1,1).
type CubicBezier struct {
	X1, Y1, X2, Y2 float64
}

// EaseInEaseOut is the standard ease-in-ease-out timing curve.
var EaseInEaseOut = CubicBezier{X1: 0.42, Y1: 0, X2: 0.58, Y2: 1}

// Linear maps progress to itself.
var Linear = CubicBezier{X1: 0, Y1: 0, X2: 1, Y2: 1}

func bezier(p1, p2, t float64) float64 {
	u := 1 - t
	return 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t
}

func bezierSlope(p1, p2, t float64) float64 {
	u := 1 - t
	return 3*u*u*p1 + 6*u*t*(p2-p1) + 3*t*t*(1-p2)
}

// At maps linear progress x in [0,1] to eased progress.
func (c CubicBezier) At(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	// Newton first, bisection if the slope flattens out.
	t := x
	for i := 0; i < 8; i++ {
		err := bezier(c.X1, c.X2, t) - x
		if math.Abs(err) < 1e-7 {
			return bezier(c.Y1, c.Y2, t)
		}
		d := bezierSlope(c.X1, c.X2, t)
		if math.Abs(d) < 1e-6 {
			break
		}
		t -= err / d
	}

	lo, hi := 0.0, 1.0
	t = x
	for i := 0; i < 50; i++ {
		v := bezier(c.X1, c.X2, t)
		if math.Abs(v-x) < 1e-7 {
			break
		}
		if v < x {
			lo = t
		} else {
			hi = t
		}
		t = (lo + hi) / 2
	}
	return bezier(c.Y1, c.Y2, t)
}
