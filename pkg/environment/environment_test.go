package environment

import (
	"math"
	"testing"
)

func TestDensity(t *testing.T) {
	t.Run("Sea level", func(t *testing.T) {
		if Density(0) != SeaLevelDensity {
			t.Errorf("Expected %f at sea level, got %f", SeaLevelDensity, Density(0))
		}
	})

	t.Run("One scale height", func(t *testing.T) {
		expected := SeaLevelDensity / math.E
		if math.Abs(Density(ScaleHeight)-expected) > 1e-12 {
			t.Errorf("Expected %g, got %g", expected, Density(ScaleHeight))
		}
	})

	t.Run("Below ground clamps to sea level", func(t *testing.T) {
		if Density(-500) != SeaLevelDensity {
			t.Errorf("Expected sea level density below ground, got %g", Density(-500))
		}
	})

	t.Run("Monotonic decrease", func(t *testing.T) {
		prev := Density(0)
		for h := 5000.0; h <= 150000; h += 5000 {
			d := Density(h)
			if d >= prev {
				t.Fatalf("Density did not decrease at %f ft", h)
			}
			prev = d
		}
	})
}

func TestDynamicPressure(t *testing.T) {
	q := DynamicPressure(SeaLevelDensity, 100)
	expected := 0.5 * SeaLevelDensity * 10000
	if math.Abs(q-expected) > 1e-12 {
		t.Errorf("Expected q=%f, got %f", expected, q)
	}
}

func TestGConversions(t *testing.T) {
	if GToAccel(1) != Gravity {
		t.Errorf("Expected 1 G = %f, got %f", Gravity, GToAccel(1))
	}
	if math.Abs(AccelToG(GToAccel(50))-50) > 1e-12 {
		t.Error("Expected G round trip")
	}
}
