package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/createInvoice", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("Crypto-Pay-API-Token"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "USDT", body["asset"])
		assert.Equal(t, "10.50", body["amount"])
		assert.Equal(t, "NEW:42", body["payload"])

		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"invoice_id":      int64(9001),
				"status":          "active",
				"asset":           "USDT",
				"amount":          "10.50",
				"payload":         "NEW:42",
				"bot_invoice_url": "https://t.me/CryptoBot?start=inv9001",
			},
		})
	}))
	defer srv.Close()

	c := NewCryptoPayClient(srv.URL, "test-token", "USDT")
	inv, err := c.CreateInvoice(context.Background(), 1050, "wager", "NEW:42")
	require.NoError(t, err)
	assert.Equal(t, int64(9001), inv.InvoiceID)
	assert.Equal(t, InvoiceActive, inv.Status)
	assert.False(t, inv.Paid())
	assert.NotEmpty(t, inv.BotInvoiceURL)
}

func TestGetInvoicesChunksBatches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["invoice_ids"])

		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"result": map[string]any{
				"items": []map[string]any{
					{"invoice_id": int64(1), "status": "paid", "amount": "1.00"},
				},
			},
		})
	}))
	defer srv.Close()

	ids := make([]int64, 150)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	c := NewCryptoPayClient(srv.URL, "tok", "USDT")
	invs, err := c.GetInvoices(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, invs, 2)
	assert.True(t, invs[0].Paid())
}

func TestTransferDuplicateSpendID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": map[string]any{"code": 400, "name": "SPEND_ID_DUPLICATE"},
		})
	}))
	defer srv.Close()

	c := NewCryptoPayClient(srv.URL, "tok", "USDT")
	err := c.Transfer(context.Background(), 777, 500, "payout:1")
	assert.ErrorIs(t, err, ErrDuplicateSpendID)
}

func TestTransferAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": map[string]any{"code": 400, "name": "NOT_ENOUGH_COINS"},
		})
	}))
	defer srv.Close()

	c := NewCryptoPayClient(srv.URL, "tok", "USDT")
	err := c.Transfer(context.Background(), 777, 500, "payout:1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateSpendID)
	assert.Contains(t, err.Error(), "NOT_ENOUGH_COINS")
}

func TestTransferSendsDecimalAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "777", body["user_id"])
		assert.Equal(t, "18.00", body["amount"])
		assert.Equal(t, "payout:5", body["spend_id"])

		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"transfer_id": 1}})
	}))
	defer srv.Close()

	c := NewCryptoPayClient(srv.URL, "tok", "USDT")
	require.NoError(t, c.Transfer(context.Background(), 777, 1800, "payout:5"))
}
