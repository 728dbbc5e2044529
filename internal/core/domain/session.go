package domain

import "time"

type SessionState string

const (
	SessionPending   SessionState = "pending"
	SessionEditing   SessionState = "editing"
	SessionConfirmed SessionState = "confirmed"
	SessionCancelled SessionState = "cancelled"
	SessionExpired   SessionState = "expired"
)

// ConfirmationSession holds one actor's in-progress candidate until it is
// confirmed, cancelled, or expires. When a screenshot yields several
// donation regions the remaining candidates queue up behind the active one;
// confirming the active candidate promotes the next, so each region is
// confirmed independently while the actor still owns a single session.
type ConfirmationSession struct {
	ID            string        `json:"session_id"`
	ActorID       string        `json:"actor_id"`
	Candidate     Candidate     `json:"candidate"`
	Queued        []Candidate   `json:"queued,omitempty"`
	State         SessionState  `json:"state"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	PendingRepair *RepairTicket `json:"pending_repair,omitempty"`
}

// RepairTicket is the pre-failure aggregate snapshot of a confirm whose
// ledger apply wrote the holder side but not the group side or the audit
// entry. It rides on the restored session so a retried confirm finishes
// the interrupted write set instead of applying the delta a second time,
// even when the retry lands on a freshly restarted process.
type RepairTicket struct {
	TransactionID string `json:"transaction_id"`
	BeforeHolder  int    `json:"before_holder_qty"`
	BeforeGroup   int    `json:"before_group_qty"`
}
