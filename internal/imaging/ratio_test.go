package imaging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRatio(t *testing.T) {
	tests := []struct {
		width, height int
		want          RatioBucket
	}{
		// Fixtures from the intake pipeline's canonical set
		{1000, 1000, RatioSquare},
		{1600, 900, RatioWide},
		{900, 1000, RatioSquare},  // ratio 0.9
		{700, 1000, RatioPortrait}, // ratio 0.7
		{500, 1000, RatioTall},     // ratio 0.5
		// Comparisons are strict: boundary ratios fall to the next rule
		{1200, 800, RatioLandscape}, // ratio exactly 1.5: not >1.5, is >1.2
		{1200, 1000, RatioSquare},   // ratio exactly 1.2: not >1.2
		{600, 1000, RatioPortrait},  // ratio exactly 0.6: not <0.6, is <0.8
		{800, 1000, RatioSquare},    // ratio exactly 0.8: not <0.8
		// Just past the boundaries
		{1501, 1000, RatioWide},
		{1201, 1000, RatioLandscape},
		{599, 1000, RatioTall},
		{799, 1000, RatioPortrait},
		// Extremes
		{10000, 1, RatioWide},
		{1, 10000, RatioTall},
		{1, 1, RatioSquare},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d", tt.width, tt.height), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRatio(tt.width, tt.height))
		})
	}
}

func TestClassifyRatio_Deterministic(t *testing.T) {
	// Same dimensions always yield the same bucket
	for i := 0; i < 3; i++ {
		assert.Equal(t, RatioLandscape, ClassifyRatio(1300, 1000))
	}
}

func TestClassifyRatio_DegenerateDimensions(t *testing.T) {
	assert.Equal(t, RatioSquare, ClassifyRatio(0, 100))
	assert.Equal(t, RatioSquare, ClassifyRatio(100, 0))
	assert.Equal(t, RatioSquare, ClassifyRatio(-1, -1))
}
