//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates all domain tables. Order does not matter with CASCADE,
// but listing children first keeps intent clear.
func (env *TestEnv) CleanAll() {
	env.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"transfer_log",
		"invoice_wait",
		"deal",
		"fight",
		"app_user",
	}

	for _, table := range tables {
		if _, err := env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			env.t.Fatalf("truncate %s: %v", table, err)
		}
	}
}
