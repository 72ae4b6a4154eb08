package fingerprint_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/firasghr/goantidetect/fingerprint"
)

func TestHumanizePath_MinimumPoints(t *testing.T) {
	points := fingerprint.HumanizePath(rand.New(rand.NewSource(1)), 1920, 1080)
	if len(points) < 20 {
		t.Errorf("expected at least 20 points, got %d", len(points))
	}
}

func TestHumanizePath_MonotonicTimestamps(t *testing.T) {
	points := fingerprint.HumanizePath(rand.New(rand.NewSource(2)), 1366, 768)
	for i := 1; i < len(points); i++ {
		if points[i].T < points[i-1].T {
			t.Errorf("timestamps not monotonically increasing at index %d", i)
		}
	}
}

func TestHumanizePath_EndsWithClick(t *testing.T) {
	points := fingerprint.HumanizePath(rand.New(rand.NewSource(3)), 1440, 900)
	n := len(points)
	if points[n-2].EventType != 1 {
		t.Errorf("second-to-last event should be mousedown (1), got %d", points[n-2].EventType)
	}
	if points[n-1].EventType != 2 {
		t.Errorf("last event should be mouseup (2), got %d", points[n-1].EventType)
	}
}

func TestHumanizePath_NonLinear(t *testing.T) {
	points := fingerprint.HumanizePath(rand.New(rand.NewSource(4)), 1920, 1080)
	if len(points) < 3 {
		t.Skip("not enough points to check non-linearity")
	}
	x0, y0 := points[0].X, points[0].Y
	xN, yN := points[len(points)-1].X, points[len(points)-1].Y
	maxDev := 0.0
	for _, p := range points[1 : len(points)-1] {
		dx, dy := xN-x0, yN-y0
		length := math.Sqrt(dx*dx + dy*dy)
		if length < 1 {
			continue
		}
		dev := math.Abs((p.X-x0)*dy-(p.Y-y0)*dx) / length
		if dev > maxDev {
			maxDev = dev
		}
	}
	if maxDev < 1.0 {
		t.Errorf("mouse path appears to be a straight line (max deviation = %.3f px)", maxDev)
	}
}

func TestHumanizePath_NilRNG(t *testing.T) {
	points := fingerprint.HumanizePath(nil, 1920, 1080)
	if len(points) == 0 {
		t.Fatal("expected non-empty path with nil rng fallback")
	}
}
