package coordinates

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestAltitudeAndRange(t *testing.T) {
	p := NED(1000, 2000, -30000)
	if Altitude(p) != 30000 {
		t.Errorf("Expected altitude 30000, got %f", Altitude(p))
	}

	q := NED(4000, 6000, -30000)
	if got := Range(p, q); math.Abs(got-5000) > 1e-9 {
		t.Errorf("Expected range 5000, got %f", got)
	}
	if got := GroundRange(p, NED(4000, 6000, 0)); math.Abs(got-5000) > 1e-9 {
		t.Errorf("Expected ground range 5000 regardless of altitude, got %f", got)
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(mgl64.Vec3{1, 2, 3}) {
		t.Error("Expected finite vector to be reported finite")
	}
	if IsFinite(mgl64.Vec3{1, math.NaN(), 3}) {
		t.Error("Expected NaN component to be reported")
	}
	if IsFinite(mgl64.Vec3{math.Inf(1), 0, 0}) {
		t.Error("Expected Inf component to be reported")
	}
}

func TestNormalizeAzimuth(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{0, 0},
		{359, 359},
		{360, 0},
		{-90, 270},
		{725, 5},
	}

	for _, tt := range tests {
		if got := NormalizeAzimuth(tt.input); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("NormalizeAzimuth(%f) = %f, expected %f", tt.input, got, tt.expected)
		}
	}
}

func TestClosestApproach(t *testing.T) {
	t.Run("Pass through inside the step", func(t *testing.T) {
		// Relative position goes from 75 ft ahead to 75 ft behind, offset 10 ft east.
		d, f := ClosestApproach(NED(75, 10, 0), NED(-75, 10, 0))
		if math.Abs(d-10) > 1e-9 {
			t.Errorf("Expected miss distance 10, got %f", d)
		}
		if math.Abs(f-0.5) > 1e-9 {
			t.Errorf("Expected fraction 0.5, got %f", f)
		}
	})

	t.Run("Closing but not yet at closest point", func(t *testing.T) {
		d, f := ClosestApproach(NED(300, 0, 0), NED(150, 0, 0))
		if f != 1 {
			t.Errorf("Expected fraction clamped to 1, got %f", f)
		}
		if math.Abs(d-150) > 1e-9 {
			t.Errorf("Expected distance 150, got %f", d)
		}
	})

	t.Run("No relative motion", func(t *testing.T) {
		d, f := ClosestApproach(NED(0, 40, 0), NED(0, 40, 0))
		if d != 40 || f != 0 {
			t.Errorf("Expected (40, 0), got (%f, %f)", d, f)
		}
	})
}

func TestLineOfSight(t *testing.T) {
	from := NED(0, 0, 0)

	los := LineOfSight(from, NED(0, 1000, -1000))
	if math.Abs(los.Azimuth-90) > 1e-9 {
		t.Errorf("Expected azimuth 90 (east), got %f", los.Azimuth)
	}
	if math.Abs(los.Elevation-45) > 1e-9 {
		t.Errorf("Expected elevation 45, got %f", los.Elevation)
	}

	los = LineOfSight(from, NED(-1000, 0, 0))
	if math.Abs(los.Azimuth-180) > 1e-9 {
		t.Errorf("Expected azimuth 180 (south), got %f", los.Azimuth)
	}
}

func TestVelocityFromAngles(t *testing.T) {
	v := VelocityFromAngles(6000, 0, -30)
	if math.Abs(v.Len()-6000) > 1e-6 {
		t.Errorf("Expected speed 6000, got %f", v.Len())
	}
	if v[Down] <= 0 {
		t.Errorf("Expected descending velocity to have positive down component, got %f", v[Down])
	}
	if math.Abs(FlightPathAngle(v)+30) > 1e-9 {
		t.Errorf("Expected flight path angle -30, got %f", FlightPathAngle(v))
	}
	if math.Abs(Heading(VelocityFromAngles(100, 270, 0))-270) > 1e-9 {
		t.Error("Expected heading 270 round trip")
	}
}
