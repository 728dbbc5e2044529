package domain

import "time"

type Origin string

const (
	OriginDonation        Origin = "donation"
	OriginCraftOutput     Origin = "craft_output"
	OriginCraftInput      Origin = "craft_input"
	OriginAuditCorrection Origin = "audit_correction"
)

// ScopeGroup is the aggregate scope shared by the whole guild; holder
// scopes are actor ids.
const ScopeGroup = "group"

// Transaction is an immutable signed quantity change for one item/quality,
// applied at most once, identified by ID.
type Transaction struct {
	ID            string    `json:"transaction_id"`
	ActorID       string    `json:"actor_id"`
	ItemID        string    `json:"item_id"`
	Quality       Quality   `json:"quality"`
	QuantityDelta int       `json:"quantity_delta"`
	Origin        Origin    `json:"origin"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuditLogEntry records one applied transaction with the aggregate values
// observed around it. Append-only; the entry's presence is what makes a
// transaction id "already applied".
type AuditLogEntry struct {
	TransactionID string    `json:"transaction_id"`
	ActorID       string    `json:"actor_id"`
	ItemID        string    `json:"item_id"`
	Quality       Quality   `json:"quality"`
	QuantityDelta int       `json:"quantity_delta"`
	Origin        Origin    `json:"origin"`
	BeforeHolder  int       `json:"before_holder_qty"`
	AfterHolder   int       `json:"after_holder_qty"`
	BeforeGroup   int       `json:"before_group_qty"`
	AfterGroup    int       `json:"after_group_qty"`
	Timestamp     time.Time `json:"timestamp"`
}

// InventoryKey addresses one aggregate bucket within a scope.
type InventoryKey struct {
	ItemID  string  `json:"item_id"`
	Quality Quality `json:"quality"`
}

// ItemLine is one (item, quality, quantity) triple as reported by an actor,
// used by audit submissions and craft requests.
type ItemLine struct {
	ItemID   string  `json:"item_id"`
	Quality  Quality `json:"quality"`
	Quantity int     `json:"quantity"`
}
