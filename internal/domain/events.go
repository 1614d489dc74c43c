package domain

import (
	"encoding/json"
	"time"
)

// NotificationKind enumerates events the chat surface delivers to users.
type NotificationKind string

const (
	NotifyDealMatched    NotificationKind = "deal_matched"
	NotifyPayoutSent     NotificationKind = "payout_sent"
	NotifyDealLost       NotificationKind = "deal_lost"
	NotifyRefundSent     NotificationKind = "refund_sent"
	NotifyStrandedRefund NotificationKind = "stranded_refund"
	NotifyResultOverdue  NotificationKind = "result_overdue"
)

// Notification is the wire payload published for the chat surface.
// RecipientExternalID is the chat identity the message should reach.
type Notification struct {
	Kind                NotificationKind `json:"kind"`
	RecipientExternalID int64            `json:"recipient_external_id"`
	FightTitle          string           `json:"fight_title,omitempty"`
	WinnerName          string           `json:"winner_name,omitempty"`
	DealID              int64            `json:"deal_id,omitempty"`
	FightID             int64            `json:"fight_id,omitempty"`
	AmountCents         int64            `json:"amount_cents,omitempty"`
	FeeCents            int64            `json:"fee_cents,omitempty"`
	OccurredAt          time.Time        `json:"occurred_at"`
}

// Encode serializes the notification for publishing.
func (n Notification) Encode() []byte {
	b, _ := json.Marshal(n)
	return b
}
