//go:build integration

package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// FakeTransfer records one transfer call against the fake provider.
type FakeTransfer struct {
	UserID  string
	Amount  string
	SpendID string
}

// FakeCryptoPay is an in-process Crypto Pay API double. Invoices start active;
// tests flip them with MarkPaid or MarkExpired and then drive the reconciler.
type FakeCryptoPay struct {
	mu        sync.Mutex
	server    *httptest.Server
	nextID    int64
	invoices  map[int64]*fakeInvoice
	transfers []FakeTransfer
	spendIDs  map[string]bool

	// FailTransfers makes transfer calls return a provider error.
	FailTransfers bool
}

type fakeInvoice struct {
	ID      int64
	Status  string
	Asset   string
	Amount  string
	Payload string
	PaidAt  string
}

func NewFakeCryptoPay(t *testing.T) *FakeCryptoPay {
	t.Helper()
	f := &FakeCryptoPay{
		nextID:   1000,
		invoices: make(map[int64]*fakeInvoice),
		spendIDs: make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/createInvoice", f.handleCreateInvoice)
	mux.HandleFunc("/getInvoices", f.handleGetInvoices)
	mux.HandleFunc("/transfer", f.handleTransfer)
	f.server = httptest.NewServer(mux)
	return f
}

func (f *FakeCryptoPay) URL() string { return f.server.URL }
func (f *FakeCryptoPay) Close()      { f.server.Close() }

// MarkPaid flips an invoice to paid.
func (f *FakeCryptoPay) MarkPaid(invoiceID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.invoices[invoiceID]; ok {
		inv.Status = "paid"
		inv.PaidAt = time.Now().UTC().Format(time.RFC3339)
	}
}

// MarkExpired flips an invoice to expired.
func (f *FakeCryptoPay) MarkExpired(invoiceID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.invoices[invoiceID]; ok {
		inv.Status = "expired"
	}
}

// LastInvoiceID returns the id of the most recently created invoice.
func (f *FakeCryptoPay) LastInvoiceID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextID - 1
}

// Transfers returns a copy of all recorded transfer calls.
func (f *FakeCryptoPay) Transfers() []FakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeTransfer, len(f.transfers))
	copy(out, f.transfers)
	return out
}

func (f *FakeCryptoPay) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Asset   string `json:"asset"`
		Amount  string `json:"amount"`
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "BAD_REQUEST")
		return
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	inv := &fakeInvoice{
		ID:      id,
		Status:  "active",
		Asset:   req.Asset,
		Amount:  req.Amount,
		Payload: req.Payload,
	}
	f.invoices[id] = inv
	f.mu.Unlock()

	writeResult(w, invoiceJSON(inv))
}

func (f *FakeCryptoPay) handleGetInvoices(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InvoiceIDs string `json:"invoice_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "BAD_REQUEST")
		return
	}

	f.mu.Lock()
	var items []map[string]any
	for _, part := range strings.Split(req.InvoiceIDs, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		if inv, ok := f.invoices[id]; ok {
			items = append(items, invoiceJSON(inv))
		}
	}
	f.mu.Unlock()

	writeResult(w, map[string]any{"items": items})
}

func (f *FakeCryptoPay) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Amount  string `json:"amount"`
		SpendID string `json:"spend_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "BAD_REQUEST")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailTransfers {
		writeError(w, 500, "INTERNAL_ERROR")
		return
	}
	if f.spendIDs[req.SpendID] {
		writeError(w, 400, "SPEND_ID_DUPLICATE")
		return
	}
	f.spendIDs[req.SpendID] = true
	f.transfers = append(f.transfers, FakeTransfer{
		UserID:  req.UserID,
		Amount:  req.Amount,
		SpendID: req.SpendID,
	})

	writeResult(w, map[string]any{"transfer_id": len(f.transfers)})
}

func invoiceJSON(inv *fakeInvoice) map[string]any {
	out := map[string]any{
		"invoice_id":      inv.ID,
		"status":          inv.Status,
		"asset":           inv.Asset,
		"amount":          inv.Amount,
		"payload":         inv.Payload,
		"bot_invoice_url": "https://t.me/CryptoBot?start=inv" + strconv.FormatInt(inv.ID, 10),
	}
	if inv.PaidAt != "" {
		out["paid_at"] = inv.PaidAt
	}
	return out
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func writeError(w http.ResponseWriter, code int, name string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ok":    false,
		"error": map[string]any{"code": code, "name": name},
	})
}
