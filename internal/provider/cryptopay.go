package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sidestake/exchange/internal/infra"
)

// Invoice statuses returned by Crypto Pay.
const (
	InvoiceActive  = "active"
	InvoicePaid    = "paid"
	InvoiceExpired = "expired"
)

// getInvoices accepts at most 100 ids per call.
const invoiceBatchSize = 100

// ErrDuplicateSpendID is returned when the provider has already executed a
// transfer with the same spend_id. Callers treat it as success.
var ErrDuplicateSpendID = errors.New("cryptopay: duplicate spend_id")

// CryptoPayClient wraps the Crypto Pay HTTP API.
type CryptoPayClient struct {
	baseURL string
	token   string
	asset   string
	client  *http.Client
}

// NewCryptoPayClient creates a Crypto Pay client. baseURL has no trailing slash.
func NewCryptoPayClient(baseURL, token, asset string) *CryptoPayClient {
	return &CryptoPayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		asset:   asset,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Invoice is a Crypto Pay invoice as returned by createInvoice and getInvoices.
type Invoice struct {
	InvoiceID     int64  `json:"invoice_id"`
	Status        string `json:"status"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	Payload       string `json:"payload"`
	BotInvoiceURL string `json:"bot_invoice_url"`
	PaidAt        string `json:"paid_at,omitempty"`
}

// Paid reports whether the invoice has been paid.
func (i Invoice) Paid() bool { return i.Status == InvoicePaid }

type apiError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *apiError       `json:"error"`
}

// CreateInvoice creates an invoice for the given amount with an opaque payload
// the reconciler reads back on payment.
func (c *CryptoPayClient) CreateInvoice(ctx context.Context, amountCents int64, description, payload string) (*Invoice, error) {
	body := map[string]any{
		"asset":       c.asset,
		"amount":      infra.CentsToDecimal(amountCents),
		"description": description,
		"payload":     payload,
	}
	raw, err := c.post(ctx, "createInvoice", body)
	if err != nil {
		return nil, err
	}
	var inv Invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	return &inv, nil
}

// GetInvoices fetches invoices by id, chunking to the provider's batch limit.
func (c *CryptoPayClient) GetInvoices(ctx context.Context, ids []int64) ([]Invoice, error) {
	var out []Invoice
	for start := 0; start < len(ids); start += invoiceBatchSize {
		end := start + invoiceBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := c.getInvoiceBatch(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *CryptoPayClient) getInvoiceBatch(ctx context.Context, ids []int64) ([]Invoice, error) {
	csv := make([]string, len(ids))
	for i, id := range ids {
		csv[i] = strconv.FormatInt(id, 10)
	}
	raw, err := c.post(ctx, "getInvoices", map[string]any{
		"invoice_ids": strings.Join(csv, ","),
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		Items []Invoice `json:"items"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode invoices: %w", err)
	}
	return result.Items, nil
}

// Transfer sends funds to an external user. spend_id makes the call idempotent
// on the provider side; a duplicate returns ErrDuplicateSpendID.
func (c *CryptoPayClient) Transfer(ctx context.Context, externalUserID, amountCents int64, spendID string) error {
	_, err := c.post(ctx, "transfer", map[string]any{
		"user_id":  strconv.FormatInt(externalUserID, 10),
		"asset":    c.asset,
		"amount":   infra.CentsToDecimal(amountCents),
		"spend_id": spendID,
	})
	return err
}

func (c *CryptoPayClient) post(ctx context.Context, method string, body map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptopay %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("cryptopay %s (status %d): %s", method, resp.StatusCode, string(data))
	}
	if !env.OK {
		if env.Error != nil && strings.Contains(env.Error.Name, "SPEND_ID") {
			return nil, ErrDuplicateSpendID
		}
		if env.Error != nil {
			return nil, fmt.Errorf("cryptopay %s: %d %s", method, env.Error.Code, env.Error.Name)
		}
		return nil, fmt.Errorf("cryptopay %s: not ok (status %d)", method, resp.StatusCode)
	}
	return env.Result, nil
}
