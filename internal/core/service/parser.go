package service

import (
	"strconv"
	"strings"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

// Donation screenshots announce each acquisition with a keyword; the words
// that follow are the item name, optionally terminated by an "xN" count.
var regionAnchors = map[string]struct{}{
	"acquired": {},
	"removed":  {},
}

// Common OCR digit confusions, applied inside quantity tokens only.
var digitConfusions = map[rune]rune{
	'O': '0', 'o': '0',
	'l': '1', 'I': '1', '|': '1',
	'S': '5', 's': '5',
	'B': '8',
	'Z': '2', 'z': '2',
}

// Parser turns a raw OCR span stream into candidates, one per donation
// region. It never fails outright: fields it cannot settle are left unset
// with a review flag so the actor fills them in before confirming.
type Parser struct {
	catalog      *Catalog
	classifier   *QualityClassifier
	qualityFloor float64
}

func NewParser(catalog *Catalog, classifier *QualityClassifier, qualityFloor float64) *Parser {
	return &Parser{
		catalog:      catalog,
		classifier:   classifier,
		qualityFloor: qualityFloor,
	}
}

func (p *Parser) Parse(spans []domain.Span) []domain.Candidate {
	var out []domain.Candidate

	i := 0
	for i < len(spans) {
		if !isAnchor(spans[i].Text) {
			i++
			continue
		}

		region := []string{spans[i].Text}
		var nameSpans []domain.Span
		quantity, haveQuantity := 0, false

		j := i + 1
		for j < len(spans) {
			word := strings.TrimSpace(spans[j].Text)
			if word == "" || isAnchor(word) {
				break
			}
			region = append(region, word)
			if n, ok := parseQuantityToken(word); ok {
				quantity, haveQuantity = n, true
				j++
				break
			}
			if !isCountMarker(word) {
				nameSpans = append(nameSpans, spans[j])
			}
			j++
		}

		if len(nameSpans) == 0 {
			i = j
			continue
		}

		out = append(out, p.buildCandidate(nameSpans, quantity, haveQuantity, strings.Join(region, " ")))
		i = j
	}

	// Cropped screenshots often show a bare item line with no announcement
	// keyword; treat the whole stream as one region then.
	if len(out) == 0 {
		if cand, ok := p.parseBareRegion(spans); ok {
			out = append(out, cand)
		}
	}

	return out
}

func (p *Parser) parseBareRegion(spans []domain.Span) (domain.Candidate, bool) {
	var nameSpans []domain.Span
	var region []string
	quantity, haveQuantity := 0, false

	for _, s := range spans {
		word := strings.TrimSpace(s.Text)
		if word == "" {
			continue
		}
		region = append(region, word)
		if n, ok := parseQuantityToken(word); ok && !haveQuantity {
			quantity, haveQuantity = n, true
			continue
		}
		if !haveQuantity && !isCountMarker(word) {
			nameSpans = append(nameSpans, s)
		}
	}
	if len(nameSpans) == 0 {
		return domain.Candidate{}, false
	}
	return p.buildCandidate(nameSpans, quantity, haveQuantity, strings.Join(region, " ")), true
}

func (p *Parser) buildCandidate(nameSpans []domain.Span, quantity int, haveQuantity bool, sourceText string) domain.Candidate {
	words := make([]string, 0, len(nameSpans))
	for _, s := range nameSpans {
		words = append(words, s.Text)
	}
	name := strings.Trim(strings.Join(words, " "), " .,:;[](){}")

	cand := domain.Candidate{SourceText: sourceText}

	matches := p.catalog.LookupFuzzy(name)
	switch {
	case len(matches) > 0 && matches[0].Score >= p.catalog.acceptThreshold:
		cand.ItemID = matches[0].Item.ID
		cand.ItemConfidence = matches[0].Score
	case len(matches) > 0:
		// between reject and accept: keep the guess but force review
		cand.ItemID = matches[0].Item.ID
		cand.ItemConfidence = matches[0].Score
		cand.NeedsItemReview = true
	default:
		// below reject threshold: surface with an empty item slot
		cand.NeedsItemReview = true
	}

	if haveQuantity && quantity > 0 {
		cand.Quantity = quantity
	} else {
		cand.NeedsQuantityInput = true
	}

	quality, conf := p.classifier.Classify(meanColor(nameSpans))
	cand.Quality = quality
	cand.QualityConfidence = conf
	if conf < p.qualityFloor {
		cand.NeedsQualityReview = true
	}
	if cand.ItemID != "" {
		if item, ok := p.catalog.ByID(cand.ItemID); ok && !item.Supports(quality) {
			cand.NeedsQualityReview = true
		}
	}

	return cand
}

// isCountMarker matches a bare multiplication sign split off its number.
func isCountMarker(word string) bool {
	w := strings.ToLower(strings.TrimSpace(word))
	return w == "x" || w == "×"
}

func isAnchor(word string) bool {
	w := strings.TrimRight(strings.ToLower(strings.TrimSpace(word)), ":")
	_, ok := regionAnchors[w]
	return ok
}

// parseQuantityToken recognizes count tokens like "x50", "× 50", or "x5O"
// (with OCR-confused digits) and returns the corrected integer.
func parseQuantityToken(token string) (int, bool) {
	t := strings.ReplaceAll(strings.TrimSpace(token), " ", "")
	t = strings.TrimLeft(t, "x×X")
	if t == "" {
		return 0, false
	}
	var b strings.Builder
	for _, r := range t {
		if sub, ok := digitConfusions[r]; ok {
			r = sub
		}
		if r < '0' || r > '9' {
			return 0, false
		}
		b.WriteRune(r)
	}
	n, err := strconv.Atoi(b.String())
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func meanColor(spans []domain.Span) domain.Color {
	if len(spans) == 0 {
		return domain.Color{}
	}
	var r, g, b int
	for _, s := range spans {
		r += int(s.MeanColor.R)
		g += int(s.MeanColor.G)
		b += int(s.MeanColor.B)
	}
	n := len(spans)
	return domain.Color{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n)}
}
