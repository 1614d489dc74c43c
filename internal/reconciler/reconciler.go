// Package reconciler polls the payment provider for invoice state and drives
// paid invoices through matchmaking. Poll-based by design: the provider's
// webhooks are treated as unavailable, so the invoice_wait table is the only
// source of truth for what is outstanding.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/provider"
	"github.com/sidestake/exchange/internal/repository"
)

const providerKey = "cryptopay"

// InvoiceSource is the provider surface the reconciler polls.
type InvoiceSource interface {
	GetInvoices(ctx context.Context, ids []int64) ([]provider.Invoice, error)
}

// Applier applies one paid invoice. Must be idempotent.
type Applier interface {
	ApplyPaid(ctx context.Context, invoiceID int64) (bool, error)
}

// Reconciler runs the slow polling loop over all outstanding invoices and a
// bounded fast path for freshly created ones.
type Reconciler struct {
	db      repository.DBTX
	waits   repository.InvoiceWaitRepository
	source  InvoiceSource
	applier Applier
	circuit *guard.CircuitBreaker
	logger  *slog.Logger

	interval     time.Duration
	fastAttempts int
	fastInterval time.Duration
}

// New creates a reconciler. interval is the slow loop period.
func New(
	db repository.DBTX,
	waits repository.InvoiceWaitRepository,
	source InvoiceSource,
	applier Applier,
	circuit *guard.CircuitBreaker,
	interval time.Duration,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		db:           db,
		waits:        waits,
		source:       source,
		applier:      applier,
		circuit:      circuit,
		logger:       logger,
		interval:     interval,
		fastAttempts: 15,
		fastInterval: 2 * time.Second,
	}
}

// Run polls until the context is canceled. Errors are logged, never fatal:
// the next tick retries everything still outstanding.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("reconcile tick failed", "error", err)
			}
		}
	}
}

// Tick runs one reconciliation pass over all outstanding invoices.
func (r *Reconciler) Tick(ctx context.Context) error {
	ids, err := r.waits.PendingIDs(ctx, r.db)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	if err := r.circuit.Allow(providerKey); err != nil {
		r.logger.Warn("skipping reconcile tick", "error", err)
		return nil
	}

	invoices, err := r.source.GetInvoices(ctx, ids)
	if err != nil {
		r.circuit.RecordFailure(providerKey)
		return err
	}
	r.circuit.RecordSuccess(providerKey)

	for _, inv := range invoices {
		r.settle(ctx, inv)
	}
	return nil
}

// WatchInvoice polls one invoice at a short interval for a bounded number of
// attempts, so a user who pays immediately is not stuck waiting for the slow
// loop. Gives up silently: the slow loop owns the invoice afterwards.
func (r *Reconciler) WatchInvoice(ctx context.Context, invoiceID int64) {
	for attempt := 0; attempt < r.fastAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.fastInterval):
		}

		if err := r.circuit.Allow(providerKey); err != nil {
			continue
		}
		invoices, err := r.source.GetInvoices(ctx, []int64{invoiceID})
		if err != nil {
			r.circuit.RecordFailure(providerKey)
			continue
		}
		r.circuit.RecordSuccess(providerKey)

		for _, inv := range invoices {
			if inv.InvoiceID != invoiceID {
				continue
			}
			switch inv.Status {
			case provider.InvoicePaid, provider.InvoiceExpired:
				r.settle(ctx, inv)
				return
			}
		}
	}
}

func (r *Reconciler) settle(ctx context.Context, inv provider.Invoice) {
	switch inv.Status {
	case provider.InvoicePaid:
		applied, err := r.applier.ApplyPaid(ctx, inv.InvoiceID)
		if err != nil {
			r.logger.Error("apply paid invoice failed", "invoice_id", inv.InvoiceID, "error", err)
			return
		}
		if applied {
			r.logger.Info("paid invoice applied", "invoice_id", inv.InvoiceID)
		}
	case provider.InvoiceExpired:
		// Nothing was escrowed; drop the waiter.
		if err := r.waits.Delete(ctx, r.db, inv.InvoiceID); err != nil {
			r.logger.Error("drop expired invoice failed", "invoice_id", inv.InvoiceID, "error", err)
			return
		}
		r.logger.Info("expired invoice dropped", "invoice_id", inv.InvoiceID)
	}
}
