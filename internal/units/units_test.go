package units

import (
	"math"
	"testing"
)

func TestLinearToDB(t *testing.T) {
	tests := []struct {
		name     string
		linear   float64
		expected float64
	}{
		{"unity", 1.0, 0.0},
		{"ten", 10.0, 10.0},
		{"tenth", 0.1, -10.0},
		{"double", 2.0, 3.0103},
		{"zero clamps to floor", 0.0, -100.0},
		{"negative clamps to floor", -5.0, -100.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := LinearToDB(tt.linear)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("LinearToDB(%f) = %f, want %f", tt.linear, result, tt.expected)
			}
		})
	}
}

func TestDBRoundTrip(t *testing.T) {
	for _, v := range []float64{1e-6, 0.03, 1, 4.2, 1500} {
		got := DBToLinear(LinearToDB(v))
		if math.Abs(got-v) > 1e-9*v {
			t.Errorf("DBToLinear(LinearToDB(%g)) = %g", v, got)
		}
	}
}

func TestToLinear(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		scale    string
		expected float64
		wantErr  bool
	}{
		{"linear passthrough", 4.2, Linear, 4.2, false},
		{"empty scale is linear", 4.2, "", 4.2, false},
		{"db", -10, DB, 0.1, false},
		{"unknown scale", 1, "neper", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ToLinear(tt.value, tt.scale)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToLinear(%f, %q) error = %v, wantErr %v", tt.value, tt.scale, err, tt.wantErr)
			}
			if math.Abs(result-tt.expected) > 1e-12 {
				t.Errorf("ToLinear(%f, %q) = %f, want %f", tt.value, tt.scale, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		scale    string
		expected bool
	}{
		{"valid linear", Linear, true},
		{"valid db", DB, true},
		{"invalid scale", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "dB", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.scale)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.scale, result, tt.expected)
			}
		})
	}
}
