package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ptdat/guild-bank/internal/core/domain"
	"github.com/ptdat/guild-bank/internal/pkg/logger"
)

type craftFixture struct {
	svc         *CraftService
	ledger      *LedgerService
	ledgerStore *memLedgerStore
}

func newCraftFixture() *craftFixture {
	ledgerStore := newMemLedgerStore()
	ledger := NewLedgerService(ledgerStore, logger.Nop())
	svc := NewCraftService(ledger, testCatalog(), logger.Nop())
	return &craftFixture{svc: svc, ledger: ledger, ledgerStore: ledgerStore}
}

func (f *craftFixture) seed(t *testing.T, actor, itemID string, quality domain.Quality, qty int) {
	t.Helper()
	tx := domain.Transaction{
		ID:            "seed-" + actor + "-" + itemID + "-" + string(quality),
		ActorID:       actor,
		ItemID:        itemID,
		Quality:       quality,
		QuantityDelta: qty,
		Origin:        domain.OriginDonation,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := f.ledger.Apply(context.Background(), tx); err != nil {
		t.Fatalf("seed %s: %v", tx.ID, err)
	}
}

func TestCraftProcessing(t *testing.T) {
	f := newCraftFixture()
	ctx := context.Background()
	f.seed(t, "alice", "oak-wood", domain.QualityCommon, 10)

	applied, err := f.svc.Craft(ctx, "alice",
		[]domain.ItemLine{{ItemID: "oak-wood", Quality: domain.QualityCommon, Quantity: 4}},
		[]domain.ItemLine{{ItemID: "oak-timber", Quality: domain.QualityCommon, Quantity: 2}},
		true,
	)
	if err != nil {
		t.Fatalf("Craft: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("applied %d transactions; want 2", len(applied))
	}
	if applied[0].Origin != domain.OriginCraftInput || applied[0].QuantityDelta != -4 {
		t.Errorf("material leg = %+v; want craft_input -4", applied[0])
	}
	if applied[1].Origin != domain.OriginCraftOutput || applied[1].QuantityDelta != 2 {
		t.Errorf("output leg = %+v; want craft_output +2", applied[1])
	}
	if got := f.ledgerStore.qty("alice", "oak-wood", domain.QualityCommon); got != 6 {
		t.Errorf("oak-wood = %d; want 6", got)
	}
	if got := f.ledgerStore.qty("alice", "oak-timber", domain.QualityCommon); got != 2 {
		t.Errorf("oak-timber = %d; want 2", got)
	}
}

func TestCraftWithoutProcessing(t *testing.T) {
	f := newCraftFixture()
	ctx := context.Background()
	f.seed(t, "alice", "oak-wood", domain.QualityCommon, 10)

	// pure crafting: the product leaves with the artisan, only materials move
	applied, err := f.svc.Craft(ctx, "alice",
		[]domain.ItemLine{{ItemID: "oak-wood", Quality: domain.QualityCommon, Quantity: 4}},
		[]domain.ItemLine{{ItemID: "oak-timber", Quality: domain.QualityCommon, Quantity: 2}},
		false,
	)
	if err != nil {
		t.Fatalf("Craft: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("applied %d transactions; want 1 (materials only)", len(applied))
	}
	if got := f.ledgerStore.qty("alice", "oak-timber", domain.QualityCommon); got != 0 {
		t.Errorf("oak-timber = %d; want 0", got)
	}
}

func TestCraftOverdraw(t *testing.T) {
	f := newCraftFixture()
	ctx := context.Background()
	f.seed(t, "alice", "oak-wood", domain.QualityCommon, 3)

	applied, err := f.svc.Craft(ctx, "alice",
		[]domain.ItemLine{{ItemID: "oak-wood", Quality: domain.QualityCommon, Quantity: 4}},
		nil,
		false,
	)
	if !errors.Is(err, ErrNegativeInventory) {
		t.Fatalf("err = %v; want ErrNegativeInventory", err)
	}
	if len(applied) != 0 {
		t.Errorf("applied %d legs before overdraw; want 0", len(applied))
	}
	if got := f.ledgerStore.qty("alice", "oak-wood", domain.QualityCommon); got != 3 {
		t.Errorf("oak-wood = %d; want untouched 3", got)
	}
}

func TestCraftPartialMaterials(t *testing.T) {
	f := newCraftFixture()
	ctx := context.Background()
	f.seed(t, "alice", "oak-wood", domain.QualityCommon, 10)
	// no iron-ore seeded

	applied, err := f.svc.Craft(ctx, "alice",
		[]domain.ItemLine{
			{ItemID: "oak-wood", Quality: domain.QualityCommon, Quantity: 4},
			{ItemID: "iron-ore", Quality: domain.QualityCommon, Quantity: 5},
		},
		nil,
		false,
	)
	if !errors.Is(err, ErrNegativeInventory) {
		t.Fatalf("err = %v; want ErrNegativeInventory", err)
	}
	// the first leg was applied and is reported back to the caller
	if len(applied) != 1 || applied[0].ItemID != "oak-wood" {
		t.Fatalf("applied = %+v; want only the oak-wood leg", applied)
	}
	if got := f.ledgerStore.qty("alice", "oak-wood", domain.QualityCommon); got != 6 {
		t.Errorf("oak-wood = %d; want 6", got)
	}
}

func TestCraftValidation(t *testing.T) {
	f := newCraftFixture()
	ctx := context.Background()

	cases := []struct {
		name      string
		actor     string
		materials []domain.ItemLine
		outputs   []domain.ItemLine
	}{
		{"missing actor", "", []domain.ItemLine{{ItemID: "oak-wood", Quality: domain.QualityCommon, Quantity: 1}}, nil},
		{"no materials", "alice", nil, nil},
		{"unknown material", "alice", []domain.ItemLine{{ItemID: "mithril-bar", Quality: domain.QualityCommon, Quantity: 1}}, nil},
		{"zero quantity", "alice", []domain.ItemLine{{ItemID: "oak-wood", Quality: domain.QualityCommon, Quantity: 0}}, nil},
		{"bad output", "alice",
			[]domain.ItemLine{{ItemID: "oak-wood", Quality: domain.QualityCommon, Quantity: 1}},
			[]domain.ItemLine{{ItemID: "daffodil", Quality: domain.QualityLegendary, Quantity: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Craft(ctx, tc.actor, tc.materials, tc.outputs, true); !errors.Is(err, ErrInvalidFieldValue) {
				t.Errorf("err = %v; want ErrInvalidFieldValue", err)
			}
		})
	}
}
