package service

import (
	"testing"

	"github.com/ptdat/guild-bank/internal/core/domain"
)

func TestCatalogLookupExact(t *testing.T) {
	c := testCatalog()

	item, ok := c.LookupExact("Iron Ore")
	if !ok || item.ID != "iron-ore" {
		t.Fatalf("LookupExact(Iron Ore) = %+v, %v; want iron-ore", item, ok)
	}

	// normalization: case, punctuation, extra whitespace
	item, ok = c.LookupExact("  iron   ORE. ")
	if !ok || item.ID != "iron-ore" {
		t.Errorf("LookupExact with messy input = %+v, %v; want iron-ore", item, ok)
	}

	if _, ok := c.LookupExact("Mithril Bar"); ok {
		t.Errorf("LookupExact(Mithril Bar) matched; want miss")
	}
}

func TestCatalogLookupFuzzy(t *testing.T) {
	c := testCatalog()

	t.Run("close misspelling scores above accept", func(t *testing.T) {
		matches := c.LookupFuzzy("Iron Or")
		if len(matches) == 0 {
			t.Fatal("no matches for Iron Or")
		}
		if matches[0].Item.ID != "iron-ore" {
			t.Fatalf("best match = %s; want iron-ore", matches[0].Item.ID)
		}
		if matches[0].Score < c.AcceptThreshold() {
			t.Errorf("score = %.3f; want >= %.3f", matches[0].Score, c.AcceptThreshold())
		}
	})

	t.Run("garbled text scores in the review band", func(t *testing.T) {
		matches := c.LookupFuzzy("Oak Wd")
		if len(matches) == 0 {
			t.Fatal("no matches for Oak Wd")
		}
		best := matches[0]
		if best.Item.ID != "oak-wood" {
			t.Fatalf("best match = %s; want oak-wood", best.Item.ID)
		}
		if best.Score >= c.AcceptThreshold() || best.Score < 0.55 {
			t.Errorf("score = %.3f; want in [0.55, %.3f)", best.Score, c.AcceptThreshold())
		}
	})

	t.Run("nonsense drops below reject", func(t *testing.T) {
		if matches := c.LookupFuzzy("Zzzzqq"); len(matches) != 0 {
			t.Errorf("got %d matches for nonsense; want 0", len(matches))
		}
	})

	t.Run("results sorted best first", func(t *testing.T) {
		matches := c.LookupFuzzy("Oak Wood")
		for i := 1; i < len(matches); i++ {
			if matches[i].Score > matches[i-1].Score {
				t.Fatalf("matches out of order at %d: %.3f > %.3f", i, matches[i].Score, matches[i-1].Score)
			}
		}
	})
}

func TestCatalogResolve(t *testing.T) {
	c := testCatalog()

	cases := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"Iron Ore", "iron-ore", true},
		{"iron-ore", "iron-ore", true}, // canonical id passthrough
		{"Iron Or", "iron-ore", true},  // fuzzy above accept
		{"Oak Wd", "", false},          // review band is not good enough for an edit
		{"Zzzzqq", "", false},
	}
	for _, tc := range cases {
		item, ok := c.Resolve(tc.in)
		if ok != tc.wantOK {
			t.Errorf("Resolve(%q) ok = %v; want %v", tc.in, ok, tc.wantOK)
			continue
		}
		if ok && item.ID != tc.wantID {
			t.Errorf("Resolve(%q) = %s; want %s", tc.in, item.ID, tc.wantID)
		}
	}
}

func TestNewCatalogValidation(t *testing.T) {
	if _, err := NewCatalog(nil, 0.5, 0.8); err == nil {
		t.Error("reject above accept accepted; want error")
	}
	if _, err := NewCatalog([]domain.Item{{ID: "", DisplayName: "X"}}, 0.8, 0.5); err == nil {
		t.Error("item without id accepted; want error")
	}
}
