package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferKind distinguishes the three outbound transfer flavors.
type TransferKind string

const (
	TransferPayout         TransferKind = "payout"
	TransferRefund         TransferKind = "refund"
	TransferStrandedRefund TransferKind = "refund_stranded"
)

// TransferStatus tracks whether a logged transfer has been sent.
type TransferStatus string

const (
	TransferPending TransferStatus = "pending"
	TransferSent    TransferStatus = "sent"
)

// TransferLog is one append-only audit row per outbound transfer. Pending
// rows are queued stranded refunds awaiting the settlement engine; sent rows
// record a provider-acknowledged transfer keyed by SpendID.
type TransferLog struct {
	ID          uuid.UUID      `json:"id"`
	SpendID     string         `json:"spend_id"`
	Kind        TransferKind   `json:"kind"`
	Status      TransferStatus `json:"status"`
	DealID      *int64         `json:"deal_id,omitempty"`
	InvoiceID   *int64         `json:"invoice_id,omitempty"`
	UserID      int64          `json:"user_id"`
	AmountCents int64          `json:"amount_cents"`
	FeeCents    int64          `json:"fee_cents"`
	CreatedAt   time.Time      `json:"created_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
}
