//go:build integration

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sidestake/exchange/internal/auth"
	"github.com/sidestake/exchange/internal/domain"
)

// Ctx returns a context with a per-call test timeout.
func Ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ServiceToken mints a service-realm JWT.
func (env *TestEnv) ServiceToken() string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmService, "chat-service")
	if err != nil {
		env.t.Fatalf("generate service token: %v", err)
	}
	return token
}

// AdminToken mints an admin-realm JWT.
func (env *TestEnv) AdminToken() string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmAdmin, "operator")
	if err != nil {
		env.t.Fatalf("generate admin token: %v", err)
	}
	return token
}

// Do performs an HTTP request against the test server and returns the
// response with its body fully read.
func (env *TestEnv) Do(method, path, token string, body any) (*http.Response, []byte) {
	env.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			env.t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, reader)
	if err != nil {
		env.t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.Server.Client().Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		env.t.Fatalf("read response body: %v", err)
	}
	return resp, data
}

// GET performs an authenticated GET against the test server.
func (env *TestEnv) GET(path, token string) (*http.Response, []byte) {
	return env.Do(http.MethodGet, path, token, nil)
}

// POST performs an authenticated POST against the test server.
func (env *TestEnv) POST(path, token string, body any) (*http.Response, []byte) {
	return env.Do(http.MethodPost, path, token, body)
}

// Decode unmarshals a response body, failing the test on malformed JSON.
func (env *TestEnv) Decode(data []byte, target any) {
	env.t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		env.t.Fatalf("decode response %q: %v", string(data), err)
	}
}

// SeedUser inserts a user row and returns its internal id.
func (env *TestEnv) SeedUser(externalID int64, username string) int64 {
	env.t.Helper()

	var id int64
	err := env.Pool.QueryRow(Ctx(env.t),
		`INSERT INTO app_user (external_id, username) VALUES ($1, $2)
		 ON CONFLICT (external_id) DO UPDATE SET username = EXCLUDED.username
		 RETURNING id`,
		externalID, username).Scan(&id)
	if err != nil {
		env.t.Fatalf("seed user: %v", err)
	}
	return id
}

// SeedFight inserts a fight row and returns its id.
func (env *TestEnv) SeedFight(title, side1, side2 string, status domain.FightStatus) int64 {
	env.t.Helper()

	var id int64
	err := env.Pool.QueryRow(Ctx(env.t),
		`INSERT INTO fight (title, side1_name, side2_name, status)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		title, side1, side2, string(status)).Scan(&id)
	if err != nil {
		env.t.Fatalf("seed fight: %v", err)
	}
	return id
}

// DealByID loads a deal directly from the database.
func (env *TestEnv) DealByID(dealID int64) *domain.Deal {
	env.t.Helper()

	deal, err := env.Deals.FindByID(Ctx(env.t), env.Pool, dealID)
	if err != nil {
		env.t.Fatalf("load deal %d: %v", dealID, err)
	}
	if deal == nil {
		env.t.Fatalf("deal %d not found", dealID)
	}
	return deal
}

// PayAndReconcile marks the invoice paid at the provider and runs one
// reconciler tick so the payment is applied.
func (env *TestEnv) PayAndReconcile(invoiceID int64) {
	env.t.Helper()
	env.CryptoPay.MarkPaid(invoiceID)
	if err := env.Reconciler.Tick(Ctx(env.t)); err != nil {
		env.t.Fatalf("reconcile tick: %v", err)
	}
}
