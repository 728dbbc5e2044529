package service

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

// Catalog is the read-only registry of item identities. Loaded once at
// startup, never mutated afterwards.
type Catalog struct {
	items  []domain.Item
	byName map[string]int // normalized display name -> items index

	acceptThreshold float64
	rejectThreshold float64
}

type Match struct {
	Item  domain.Item
	Score float64
}

type catalogFile struct {
	Items []domain.Item `yaml:"items"`
}

func NewCatalogFromFile(path string, accept, reject float64) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var cf catalogFile
	if err := yaml.Unmarshal(raw, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(cf.Items, accept, reject)
}

func NewCatalog(items []domain.Item, accept, reject float64) (*Catalog, error) {
	if reject > accept {
		return nil, fmt.Errorf("reject threshold %.2f above accept threshold %.2f", reject, accept)
	}
	c := &Catalog{
		items:           items,
		byName:          make(map[string]int, len(items)),
		acceptThreshold: accept,
		rejectThreshold: reject,
	}
	for i, it := range items {
		if it.ID == "" || it.DisplayName == "" {
			return nil, fmt.Errorf("catalog item %d missing id or name", i)
		}
		c.byName[normalizeName(it.DisplayName)] = i
	}
	return c, nil
}

func (c *Catalog) AcceptThreshold() float64 { return c.acceptThreshold }

// LookupExact resolves a display name after normalization.
func (c *Catalog) LookupExact(name string) (domain.Item, bool) {
	i, ok := c.byName[normalizeName(name)]
	if !ok {
		return domain.Item{}, false
	}
	return c.items[i], true
}

// ByID resolves a canonical item id.
func (c *Catalog) ByID(id string) (domain.Item, bool) {
	for _, it := range c.items {
		if it.ID == id {
			return it, true
		}
	}
	return domain.Item{}, false
}

// LookupFuzzy scores every catalog item against the text and returns
// matches at or above the reject threshold, best first. Scores are in
// [0,1]: the larger of normalized edit-distance similarity and token
// overlap, so both misspellings and word-subset queries rank well.
func (c *Catalog) LookupFuzzy(text string) []Match {
	q := normalizeName(text)
	if q == "" {
		return nil
	}
	qTokens := strings.Fields(q)

	out := make([]Match, 0, 4)
	for _, it := range c.items {
		name := normalizeName(it.DisplayName)
		score := editSimilarity(q, name)
		if ov := tokenOverlap(qTokens, strings.Fields(name)); ov > score {
			score = ov
		}
		if score >= c.rejectThreshold {
			out = append(out, Match{Item: it, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Resolve is the exact-or-fuzzy lookup used to validate edited item fields:
// an exact hit or a fuzzy hit at or above the accept threshold.
func (c *Catalog) Resolve(text string) (domain.Item, bool) {
	if it, ok := c.LookupExact(text); ok {
		return it, true
	}
	if it, ok := c.ByID(strings.TrimSpace(text)); ok {
		return it, true
	}
	matches := c.LookupFuzzy(text)
	if len(matches) > 0 && matches[0].Score >= c.acceptThreshold {
		return matches[0].Item, true
	}
	return domain.Item{}, false
}

func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func editSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(b))
	shared := 0
	union := len(set)
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}
