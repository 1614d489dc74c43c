package domain

import (
	"fmt"
	"time"
)

// Side identifies one of the two participants of a fight.
type Side int16

const (
	Side1 Side = 1
	Side2 Side = 2
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Side1 {
		return Side2
	}
	return Side1
}

// Valid reports whether the side is 1 or 2.
func (s Side) Valid() bool { return s == Side1 || s == Side2 }

// ParseSide validates an incoming side value.
func ParseSide(v int) (Side, error) {
	s := Side(v)
	if !s.Valid() {
		return 0, fmt.Errorf("side must be 1 or 2, got %d", v)
	}
	return s, nil
}

// DealStatus tracks a wager through its lifecycle. Transitions are monotonic:
// awaiting_match → matched → settled, or awaiting_match → void (orphan refund).
type DealStatus string

const (
	DealAwaitingMatch DealStatus = "awaiting_match"
	DealMatched       DealStatus = "matched"
	DealSettled       DealStatus = "settled"
	DealVoid          DealStatus = "void"
)

// Terminal reports whether no further transition is legal.
func (s DealStatus) Terminal() bool { return s == DealSettled || s == DealVoid }

// CanTransition reports whether the edge from s to next is on the legal graph.
func (s DealStatus) CanTransition(next DealStatus) bool {
	switch s {
	case DealAwaitingMatch:
		return next == DealMatched || next == DealVoid
	case DealMatched:
		return next == DealSettled
	}
	return false
}

// Deal is the central wager entity: up to two legs on opposite sides of a
// fight with equal stakes, escrowed through provider-held invoices.
type Deal struct {
	ID      int64 `json:"id"`
	FightID int64 `json:"fight_id"`

	// Leg 1 (creator, always present).
	User1ID      int64  `json:"user1_id"`
	Side1        Side   `json:"side1"`
	Amount1Cents int64  `json:"amount1_cents"`
	Paid1        bool   `json:"paid1"`
	Invoice1ID   *int64 `json:"invoice1_id,omitempty"`

	// Leg 2 (responder, populated at match).
	User2ID      *int64 `json:"user2_id,omitempty"`
	Side2        *Side  `json:"side2,omitempty"`
	Amount2Cents *int64 `json:"amount2_cents,omitempty"`
	Paid2        bool   `json:"paid2"`
	Invoice2ID   *int64 `json:"invoice2_id,omitempty"`

	Status    DealStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	MatchedAt *time.Time `json:"matched_at,omitempty"`
}

// Open reports whether the deal is visible to matching candidates.
func (d *Deal) Open() bool {
	return d.Status == DealAwaitingMatch && d.Paid1 && d.User2ID == nil
}

// TotalCents is the pooled escrow of a matched deal.
func (d *Deal) TotalCents() int64 {
	total := d.Amount1Cents
	if d.Amount2Cents != nil {
		total += *d.Amount2Cents
	}
	return total
}

// WinnerUserID resolves the winning leg's user for a matched deal.
// Returns an error when the deal is not fully matched or the side is invalid.
func (d *Deal) WinnerUserID(winner Side) (int64, error) {
	if !winner.Valid() {
		return 0, fmt.Errorf("deal %d: invalid winner side %d", d.ID, winner)
	}
	if d.User2ID == nil || d.Side2 == nil {
		return 0, fmt.Errorf("deal %d: not matched", d.ID)
	}
	if d.Side1 == winner {
		return d.User1ID, nil
	}
	return *d.User2ID, nil
}

// Deterministic provider idempotency keys for outbound transfers.

// PayoutSpendID keys the winner transfer of a deal.
func PayoutSpendID(dealID int64) string { return fmt.Sprintf("payout:%d", dealID) }

// RefundSpendID keys the orphan refund of a deal.
func RefundSpendID(dealID int64) string { return fmt.Sprintf("refund:%d", dealID) }

// StrandedRefundSpendID keys the compensating refund of a stranded MATCH payment.
func StrandedRefundSpendID(invoiceID int64) string {
	return fmt.Sprintf("refund_stranded:%d", invoiceID)
}
