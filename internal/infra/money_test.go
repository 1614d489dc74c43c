package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCentsToDecimal(t *testing.T) {
	tests := []struct {
		name  string
		cents int64
		want  string
	}{
		{"whole", 1000, "10.00"},
		{"fraction", 1050, "10.50"},
		{"single cent", 1, "0.01"},
		{"zero", 0, "0.00"},
		{"large", 1_000_000_00, "1000000.00"},
		{"negative", -250, "-2.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CentsToDecimal(tt.cents))
		})
	}
}

func TestDecimalToCents(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int64
		wantErr bool
	}{
		{"whole", "10", 1000, false},
		{"one fraction digit", "10.5", 1050, false},
		{"two fraction digits", "10.50", 1050, false},
		{"leading dot", ".5", 50, false},
		{"zero", "0", 0, false},
		{"negative", "-2.50", -250, false},
		{"whitespace", " 7.25 ", 725, false},
		{"three fraction digits", "10.505", 0, true},
		{"empty", "", 0, true},
		{"garbage", "ten", 0, true},
		{"double dot", "1.2.3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecimalToCents(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecimalRoundTrip(t *testing.T) {
	for _, cents := range []int64{1, 99, 100, 101, 123456789} {
		got, err := DecimalToCents(CentsToDecimal(cents))
		require.NoError(t, err)
		assert.Equal(t, cents, got)
	}
}

func TestComputeFee(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		feePct float64
		want   int64
	}{
		{"ten percent of 20 USDT", 2000, 0.10, 200},
		{"floor on odd total", 1999, 0.10, 199},
		{"zero fee", 2000, 0, 0},
		{"five percent", 1000, 0.05, 50},
		{"floor small total", 9, 0.10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp := FeeBasisPoints(tt.feePct)
			assert.Equal(t, tt.want, ComputeFee(tt.total, bp))
		})
	}
}
