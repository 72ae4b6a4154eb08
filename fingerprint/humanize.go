package fingerprint

import (
	"math"
	"math/rand"
)

// MousePoint is one sample in a synthesized pointer-movement time series.
type MousePoint struct {
	// X and Y are viewport coordinates (pixels, sub-pixel precision).
	X float64 `json:"x"`
	Y float64 `json:"y"`
	// T is milliseconds elapsed since the start of the gesture.
	T int64 `json:"t"`
	// EventType: 0 = mousemove, 1 = mousedown, 2 = mouseup.
	EventType int `json:"e"`
}

// HumanizePath produces a slice of MousePoint values tracing a smooth,
// non-linear Bezier-like path across a viewport of size screenW x screenH,
// ending with a mousedown/mouseup click sequence at the target.
//
// The algorithm:
//  1. Pick a random start point near the top-left quadrant.
//  2. Pick a random end point near the centre of the page.
//  3. Generate two off-axis control points to create a curved, human-like arc.
//  4. Sample the cubic Bezier at monotonically increasing t values with slight
//     jitter on both position and timing to simulate natural hand tremor.
//  5. Append a final click sequence (mousedown + mouseup) at the endpoint.
//
// rng may be nil, in which case a new source with the fixed seed 1 is used,
// so every nil-rng call yields the same path for the same screen size.
func HumanizePath(rng *rand.Rand, screenW, screenH int) []MousePoint {
	if rng == nil {
		rng = rand.New(rand.NewSource(1)) // deterministic fallback, callers should pass a seeded rng
	}
	const (
		minPoints = 18
		maxPoints = 45
	)
	n := minPoints + rng.Intn(maxPoints-minPoints+1)

	x0 := float64(50 + rng.Intn(screenW/4))
	y0 := float64(50 + rng.Intn(screenH/4))

	x3 := float64(screenW/4 + rng.Intn(screenW/2))
	y3 := float64(screenH/4 + rng.Intn(screenH/2))

	x1 := x0 + float64(rng.Intn(screenW/3)+screenW/6)
	y1 := y0 - float64(rng.Intn(screenH/4)+30)
	x2 := x3 - float64(rng.Intn(screenW/3)+screenW/6)
	y2 := y3 + float64(rng.Intn(screenH/4)+30)

	points := make([]MousePoint, 0, n+3)

	baseT := int64(800 + rng.Intn(1200))
	elapsed := int64(0)

	for i := 0; i < n; i++ {
		rawT := float64(i) / float64(n-1)
		bt := easeInOut(rawT)

		x, y := cubicBezier(bt, x0, y0, x1, y1, x2, y2, x3, y3)

		x += (rng.Float64() - 0.5) * 1.2
		y += (rng.Float64() - 0.5) * 1.2

		speed := 0.5 + math.Sin(math.Pi*rawT)
		delay := int64(math.Round(12 / (speed + 0.1)))
		delay += int64(rng.Intn(6)) - 2
		if delay < 4 {
			delay = 4
		}
		elapsed += delay

		points = append(points, MousePoint{
			X:         math.Round(x*100) / 100,
			Y:         math.Round(y*100) / 100,
			T:         baseT + elapsed,
			EventType: 0,
		})
	}

	lastT := points[len(points)-1].T
	points = append(points,
		MousePoint{X: x3, Y: y3, T: lastT + int64(20+rng.Intn(40)), EventType: 1},
		MousePoint{X: x3, Y: y3, T: lastT + int64(80+rng.Intn(120)), EventType: 2},
	)

	return points
}

// cubicBezier evaluates the cubic Bezier curve at parameter t in [0,1].
func cubicBezier(t, x0, y0, x1, y1, x2, y2, x3, y3 float64) (float64, float64) {
	u := 1 - t
	x := u*u*u*x0 + 3*u*u*t*x1 + 3*u*t*t*x2 + t*t*t*x3
	y := u*u*u*y0 + 3*u*u*t*y1 + 3*u*t*t*y2 + t*t*t*y3
	return x, y
}

// easeInOut maps t in [0,1] through a smooth cubic ease-in-out curve.
func easeInOut(t float64) float64 {
	return t * t * (3 - 2*t)
}
