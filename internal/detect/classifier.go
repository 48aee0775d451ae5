package detect

import (
	"image"

	"github.com/nfnt/resize"
)

// Default thresholds for the steel heuristic.
const (
	DefaultGrayThreshold       = 60
	DefaultSaturationThreshold = 50
	DefaultCoverageFraction    = 0.05
)

// Classifier decides whether a single frame shows steel: enough pixels that
// are nearly colorless yet not dark.
type Classifier struct {
	GrayThreshold       uint8   // V must be strictly above
	SaturationThreshold uint8   // S must be strictly below
	CoverageFraction    float64 // share of matching pixels that must be exceeded
	AnalysisWidth       uint    // downscale before counting; 0 keeps full resolution
}

// NewClassifier returns a Classifier with the default thresholds.
func NewClassifier() Classifier {
	return Classifier{
		GrayThreshold:       DefaultGrayThreshold,
		SaturationThreshold: DefaultSaturationThreshold,
		CoverageFraction:    DefaultCoverageFraction,
	}
}

// Classify reports whether img passes the coverage test.
func (c Classifier) Classify(img image.Image) bool {
	matched, total := c.Count(img)
	if total == 0 {
		return false
	}
	return float64(matched)/float64(total) > c.CoverageFraction
}

// Count returns the number of matching pixels and the number of pixels examined.
func (c Classifier) Count(img image.Image) (matched, total int) {
	if c.AnalysisWidth > 0 && uint(img.Bounds().Dx()) > c.AnalysisWidth {
		img = resize.Resize(c.AnalysisWidth, 0, img, resize.Bilinear)
	}

	bounds := img.Bounds()
	total = bounds.Dx() * bounds.Dy()

	if rgba, ok := img.(*image.RGBA); ok {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(bounds.Min.X, y):rgba.PixOffset(bounds.Max.X, y)]
			for i := 0; i+2 < len(row); i += 4 {
				if c.match(row[i], row[i+1], row[i+2]) {
					matched++
				}
			}
		}
		return matched, total
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if c.match(uint8(r>>8), uint8(g>>8), uint8(b>>8)) {
				matched++
			}
		}
	}
	return matched, total
}

func (c Classifier) match(r, g, b uint8) bool {
	s, v := SatVal(r, g, b)
	return s < c.SaturationThreshold && v > c.GrayThreshold
}

// SatVal computes 8-bit HSV saturation and value with the same scaling OpenCV
// uses for 8-bit images: V = max(R,G,B), S = round(255*(V-min)/V), S = 0 when V = 0.
func SatVal(r, g, b uint8) (s, v uint8) {
	hi, lo := r, r
	if g > hi {
		hi = g
	}
	if b > hi {
		hi = b
	}
	if g < lo {
		lo = g
	}
	if b < lo {
		lo = b
	}
	if hi == 0 {
		return 0, 0
	}
	diff := int(hi) - int(lo)
	return uint8((255*diff + int(hi)/2) / int(hi)), hi
}
