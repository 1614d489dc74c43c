package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// IntentKind distinguishes the two payment-contingent intents.
type IntentKind string

const (
	// IntentNew creates a new awaiting deal or auto-pairs with an opposing one.
	IntentNew IntentKind = "NEW"
	// IntentMatch targets one specific awaiting deal.
	IntentMatch IntentKind = "MATCH"
)

// InvoiceWait is the reconciliation spine: one row per invoice whose payment
// has not yet been durably applied. The row is deleted only inside the same
// transaction that applies the intent.
type InvoiceWait struct {
	InvoiceID int64           `json:"invoice_id"`
	Kind      IntentKind      `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewIntentPayload is the serialized payload of a NEW intent invoice.
type NewIntentPayload struct {
	FightID     int64 `json:"fight_id"`
	Side        Side  `json:"side"`
	AmountCents int64 `json:"amount_cents"`
	PayerTag    int64 `json:"payer_tag"`
}

// MatchIntentPayload is the serialized payload of a MATCH intent invoice.
type MatchIntentPayload struct {
	DealID      int64 `json:"deal_id"`
	Side        Side  `json:"side"`
	AmountCents int64 `json:"amount_cents"`
	PayerTag    int64 `json:"payer_tag"`
}

// DecodeNewIntent parses a NEW intent payload.
func DecodeNewIntent(raw json.RawMessage) (NewIntentPayload, error) {
	var p NewIntentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode NEW intent payload: %w", err)
	}
	if !p.Side.Valid() || p.AmountCents <= 0 || p.FightID <= 0 {
		return p, fmt.Errorf("invalid NEW intent payload: %s", string(raw))
	}
	return p, nil
}

// DecodeMatchIntent parses a MATCH intent payload.
func DecodeMatchIntent(raw json.RawMessage) (MatchIntentPayload, error) {
	var p MatchIntentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode MATCH intent payload: %w", err)
	}
	if !p.Side.Valid() || p.AmountCents <= 0 || p.DealID <= 0 {
		return p, fmt.Errorf("invalid MATCH intent payload: %s", string(raw))
	}
	return p, nil
}
