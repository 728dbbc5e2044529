package domain

import "strings"

type Quality string

const (
	QualityCommon    Quality = "Common"
	QualityUncommon  Quality = "Uncommon"
	QualityRare      Quality = "Rare"
	QualityHeroic    Quality = "Heroic"
	QualityEpic      Quality = "Epic"
	QualityLegendary Quality = "Legendary"
)

// Qualities lists every tier in ascending order.
var Qualities = []Quality{
	QualityCommon,
	QualityUncommon,
	QualityRare,
	QualityHeroic,
	QualityEpic,
	QualityLegendary,
}

var qualityRank = map[Quality]int{
	QualityCommon:    0,
	QualityUncommon:  1,
	QualityRare:      2,
	QualityHeroic:    3,
	QualityEpic:      4,
	QualityLegendary: 5,
}

// single-letter shortcuts accepted in user input
var qualityShortcuts = map[string]Quality{
	"c": QualityCommon,
	"u": QualityUncommon,
	"r": QualityRare,
	"h": QualityHeroic,
	"e": QualityEpic,
	"l": QualityLegendary,
}

func (q Quality) Rank() int {
	return qualityRank[q]
}

func (q Quality) Valid() bool {
	_, ok := qualityRank[q]
	return ok
}

// ParseQuality normalizes a quality token: full names (any casing) and
// single-letter shortcuts both resolve to a canonical Quality.
func ParseQuality(token string) (Quality, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" {
		return "", false
	}
	if len(t) == 1 {
		q, ok := qualityShortcuts[t]
		return q, ok
	}
	q := Quality(strings.ToUpper(t[:1]) + t[1:])
	if q.Valid() {
		return q, true
	}
	return "", false
}

type Item struct {
	ID          string    `yaml:"id"`
	DisplayName string    `yaml:"name"`
	Qualities   []Quality `yaml:"qualities"`
}

// Supports reports whether the item can exist at the given quality tier.
// An item with no declared tiers supports all of them.
func (i Item) Supports(q Quality) bool {
	if len(i.Qualities) == 0 {
		return q.Valid()
	}
	for _, have := range i.Qualities {
		if have == q {
			return true
		}
	}
	return false
}
