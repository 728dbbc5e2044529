package service

import (
	"math"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

// Item names are rendered in a tier-specific text color. Each colored tier
// owns a reference hue (degrees); classification picks the bucket with the
// smallest circular hue distance. Common text is white/grey and is detected
// by saturation and brightness instead of hue.
var qualityReferenceHues = []struct {
	quality domain.Quality
	hue     float64
}{
	{domain.QualityUncommon, 117.5},
	{domain.QualityRare, 215},
	{domain.QualityHeroic, 55},
	{domain.QualityEpic, 285},
	{domain.QualityLegendary, 35},
}

const (
	minSaturation = 0.30
	minValue      = 0.20
)

// QualityClassifier buckets a sampled text color into a quality tier and
// reports how decisively it won: confidence is 1 - d(best)/d(runner-up),
// so a color halfway between two reference hues scores near zero.
type QualityClassifier struct{}

func NewQualityClassifier() *QualityClassifier { return &QualityClassifier{} }

func (qc *QualityClassifier) Classify(c domain.Color) (domain.Quality, float64) {
	h, s, v := rgbToHSV(c)

	if s < minSaturation || v < minValue {
		// Desaturated or dark text: Common. The further below the
		// saturation gate, the surer we are it is not a colored tier.
		conf := 1 - s/minSaturation
		if v < minValue {
			conf = 1
		}
		return domain.QualityCommon, clamp01(conf)
	}

	best, second := math.MaxFloat64, math.MaxFloat64
	var bestQ domain.Quality
	for _, ref := range qualityReferenceHues {
		d := hueDistance(h, ref.hue)
		if d < best {
			second = best
			best, bestQ = d, ref.quality
		} else if d < second {
			second = d
		}
	}
	if second == 0 {
		return bestQ, 0
	}
	return bestQ, clamp01(1 - best/second)
}

func hueDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func rgbToHSV(c domain.Color) (h, s, v float64) {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	v = max
	delta := max - min

	if max > 0 {
		s = delta / max
	}
	if delta == 0 {
		return 0, s, v
	}

	switch max {
	case r:
		h = math.Mod((g-b)/delta, 6)
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, s, v
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
