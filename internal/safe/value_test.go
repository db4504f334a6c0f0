package safe

import (
	"math"
	"testing"
)

func TestIntToUint32(t *testing.T) {
	tests := []struct {
		name            string
		input           int
		expectedValue   uint32
		expectedClamped bool
	}{
		{
			name:            "zero value",
			input:           0,
			expectedValue:   0,
			expectedClamped: false,
		},
		{
			name:            "source line",
			input:           12,
			expectedValue:   12,
			expectedClamped: false,
		},
		{
			name:            "negative value",
			input:           -1,
			expectedValue:   0,
			expectedClamped: true,
		},
		{
			name:            "max uint32 value",
			input:           math.MaxUint32,
			expectedValue:   math.MaxUint32,
			expectedClamped: false,
		},
		{
			name:            "max uint32 plus one (overflow)",
			input:           math.MaxUint32 + 1,
			expectedValue:   math.MaxUint32,
			expectedClamped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, clamped := IntToUint32(tt.input)
			if value != tt.expectedValue {
				t.Errorf("IntToUint32(%d) value = %d, want %d", tt.input, value, tt.expectedValue)
			}
			if clamped != tt.expectedClamped {
				t.Errorf("IntToUint32(%d) clamped = %v, want %v", tt.input, clamped, tt.expectedClamped)
			}
		})
	}
}

func TestUint64ToUint32(t *testing.T) {
	tests := []struct {
		name            string
		input           uint64
		expectedValue   uint32
		expectedClamped bool
	}{
		{
			name:            "section offset",
			input:           0x1f40,
			expectedValue:   0x1f40,
			expectedClamped: false,
		},
		{
			name:            "max uint32 value",
			input:           math.MaxUint32,
			expectedValue:   math.MaxUint32,
			expectedClamped: false,
		},
		{
			name:            "max uint64 value (overflow)",
			input:           math.MaxUint64,
			expectedValue:   math.MaxUint32,
			expectedClamped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, clamped := Uint64ToUint32(tt.input)
			if value != tt.expectedValue {
				t.Errorf("Uint64ToUint32(%d) value = %d, want %d", tt.input, value, tt.expectedValue)
			}
			if clamped != tt.expectedClamped {
				t.Errorf("Uint64ToUint32(%d) clamped = %v, want %v", tt.input, clamped, tt.expectedClamped)
			}
		})
	}
}
