package imaging

// RatioBucket is one of the canonical aspect ratios the image model accepts
// for output geometry.
type RatioBucket string

const (
	RatioSquare        RatioBucket = "1:1"
	RatioLandscape     RatioBucket = "4:3"
	RatioPortrait      RatioBucket = "3:4"
	RatioWide          RatioBucket = "16:9"
	RatioTall          RatioBucket = "9:16"
)

// ClassifyRatio maps pixel dimensions to a ratio bucket. The rules are
// applied in order and comparisons are strict, so boundary ratios
// (exactly 1.5, 1.2, 0.8, 0.6) fall through to the next rule.
func ClassifyRatio(width, height int) RatioBucket {
	if width <= 0 || height <= 0 {
		return RatioSquare
	}

	r := float64(width) / float64(height)
	switch {
	case r > 1.5:
		return RatioWide
	case r > 1.2:
		return RatioLandscape
	case r < 0.6:
		return RatioTall
	case r < 0.8:
		return RatioPortrait
	default:
		return RatioSquare
	}
}
