package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, Side2, Side1.Opposite())
	assert.Equal(t, Side1, Side2.Opposite())
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		name    string
		in      int
		want    Side
		wantErr bool
	}{
		{"side 1", 1, Side1, false},
		{"side 2", 2, Side2, false},
		{"zero", 0, 0, true},
		{"three", 3, 0, true},
		{"negative", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSide(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDealStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to DealStatus
		ok       bool
	}{
		{DealAwaitingMatch, DealMatched, true},
		{DealAwaitingMatch, DealVoid, true},
		{DealMatched, DealSettled, true},
		{DealAwaitingMatch, DealSettled, false},
		{DealMatched, DealVoid, false},
		{DealSettled, DealMatched, false},
		{DealSettled, DealVoid, false},
		{DealVoid, DealMatched, false},
		{DealVoid, DealSettled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, DealSettled.Terminal())
	assert.True(t, DealVoid.Terminal())
	assert.False(t, DealAwaitingMatch.Terminal())
	assert.False(t, DealMatched.Terminal())
}

func TestDealOpen(t *testing.T) {
	u2 := int64(7)
	tests := []struct {
		name string
		deal Deal
		want bool
	}{
		{"paid awaiting", Deal{Status: DealAwaitingMatch, Paid1: true}, true},
		{"unpaid awaiting", Deal{Status: DealAwaitingMatch, Paid1: false}, false},
		{"taken", Deal{Status: DealAwaitingMatch, Paid1: true, User2ID: &u2}, false},
		{"matched", Deal{Status: DealMatched, Paid1: true, User2ID: &u2}, false},
		{"void", Deal{Status: DealVoid, Paid1: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.deal.Open())
		})
	}
}

func TestWinnerUserID(t *testing.T) {
	u2 := int64(20)
	s2 := Side2
	amt := int64(1000)
	matched := Deal{
		ID: 1, User1ID: 10, Side1: Side1, Amount1Cents: 1000,
		User2ID: &u2, Side2: &s2, Amount2Cents: &amt,
		Status: DealMatched,
	}

	winner, err := matched.WinnerUserID(Side1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), winner)

	winner, err = matched.WinnerUserID(Side2)
	require.NoError(t, err)
	assert.Equal(t, int64(20), winner)

	_, err = matched.WinnerUserID(Side(3))
	require.Error(t, err)

	orphan := Deal{ID: 2, User1ID: 10, Side1: Side1, Amount1Cents: 500, Status: DealAwaitingMatch}
	_, err = orphan.WinnerUserID(Side1)
	require.Error(t, err)
	assert.Equal(t, int64(500), orphan.TotalCents())
	assert.Equal(t, int64(2000), matched.TotalCents())
}

func TestSpendIDs(t *testing.T) {
	assert.Equal(t, "payout:42", PayoutSpendID(42))
	assert.Equal(t, "refund:42", RefundSpendID(42))
	assert.Equal(t, "refund_stranded:9001", StrandedRefundSpendID(9001))
}

func TestIntentPayloadRoundTrip(t *testing.T) {
	newP := NewIntentPayload{FightID: 5, Side: Side2, AmountCents: 1050, PayerTag: 777}
	raw, err := json.Marshal(newP)
	require.NoError(t, err)

	got, err := DecodeNewIntent(raw)
	require.NoError(t, err)
	assert.Equal(t, newP, got)

	matchP := MatchIntentPayload{DealID: 9, Side: Side1, AmountCents: 500, PayerTag: 888}
	raw, err = json.Marshal(matchP)
	require.NoError(t, err)

	gotM, err := DecodeMatchIntent(raw)
	require.NoError(t, err)
	assert.Equal(t, matchP, gotM)
}

func TestDecodeIntentRejectsInvalid(t *testing.T) {
	cases := []string{
		`{"fight_id":0,"side":1,"amount_cents":100,"payer_tag":1}`,
		`{"fight_id":1,"side":3,"amount_cents":100,"payer_tag":1}`,
		`{"fight_id":1,"side":1,"amount_cents":0,"payer_tag":1}`,
		`not json`,
	}
	for _, c := range cases {
		_, err := DecodeNewIntent(json.RawMessage(c))
		assert.Error(t, err, c)
	}

	_, err := DecodeMatchIntent(json.RawMessage(`{"deal_id":0,"side":1,"amount_cents":100,"payer_tag":1}`))
	assert.Error(t, err)
}

func TestFightAcceptsWagers(t *testing.T) {
	for _, st := range []FightStatus{FightUpcoming, FightToday, FightLive} {
		f := Fight{Status: st}
		assert.True(t, f.AcceptsWagers(), string(st))
	}
	for _, st := range []FightStatus{FightDone, FightCanceled} {
		f := Fight{Status: st}
		assert.False(t, f.AcceptsWagers(), string(st))
	}
}
