package reconciler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/internal/provider"
	"github.com/sidestake/exchange/internal/repository"
)

type fakeWaits struct {
	mu      sync.Mutex
	pending map[int64]bool
}

func newFakeWaits(ids ...int64) *fakeWaits {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return &fakeWaits{pending: m}
}

func (f *fakeWaits) Insert(_ context.Context, _ repository.DBTX, w *domain.InvoiceWait) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[w.InvoiceID] = true
	return nil
}

func (f *fakeWaits) PendingIDs(_ context.Context, _ repository.DBTX) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.pending {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeWaits) LockForApply(_ context.Context, _ pgx.Tx, invoiceID int64) (*domain.InvoiceWait, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.pending[invoiceID] {
		return nil, nil
	}
	return &domain.InvoiceWait{InvoiceID: invoiceID}, nil
}

func (f *fakeWaits) Exists(_ context.Context, _ repository.DBTX, invoiceID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[invoiceID], nil
}

func (f *fakeWaits) Delete(_ context.Context, _ repository.DBTX, invoiceID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, invoiceID)
	return nil
}

type fakeSource struct {
	mu       sync.Mutex
	invoices map[int64]provider.Invoice
	calls    int
	err      error
}

func (f *fakeSource) GetInvoices(_ context.Context, ids []int64) ([]provider.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []provider.Invoice
	for _, id := range ids {
		if inv, ok := f.invoices[id]; ok {
			out = append(out, inv)
		}
	}
	return out, nil
}

type fakeApplier struct {
	mu      sync.Mutex
	applied []int64
	waits   *fakeWaits
}

func (f *fakeApplier) ApplyPaid(ctx context.Context, invoiceID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok, _ := f.waits.Exists(ctx, nil, invoiceID)
	if !ok {
		return false, nil
	}
	f.waits.Delete(ctx, nil, invoiceID)
	f.applied = append(f.applied, invoiceID)
	return true, nil
}

func newTestReconciler(waits *fakeWaits, source *fakeSource, applier *fakeApplier) *Reconciler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(nil, waits, source, applier, guard.NewCircuitBreaker(3, time.Minute), time.Second, logger)
	r.fastAttempts = 3
	r.fastInterval = time.Millisecond
	return r
}

func TestTickAppliesPaidInvoices(t *testing.T) {
	waits := newFakeWaits(1, 2, 3)
	source := &fakeSource{invoices: map[int64]provider.Invoice{
		1: {InvoiceID: 1, Status: provider.InvoicePaid},
		2: {InvoiceID: 2, Status: provider.InvoiceActive},
		3: {InvoiceID: 3, Status: provider.InvoicePaid},
	}}
	applier := &fakeApplier{waits: waits}

	r := newTestReconciler(waits, source, applier)
	require.NoError(t, r.Tick(context.Background()))

	assert.ElementsMatch(t, []int64{1, 3}, applier.applied)
	left, _ := waits.PendingIDs(context.Background(), nil)
	assert.Equal(t, []int64{2}, left)
}

func TestTickDropsExpiredInvoices(t *testing.T) {
	waits := newFakeWaits(5)
	source := &fakeSource{invoices: map[int64]provider.Invoice{
		5: {InvoiceID: 5, Status: provider.InvoiceExpired},
	}}
	applier := &fakeApplier{waits: waits}

	r := newTestReconciler(waits, source, applier)
	require.NoError(t, r.Tick(context.Background()))

	assert.Empty(t, applier.applied)
	left, _ := waits.PendingIDs(context.Background(), nil)
	assert.Empty(t, left)
}

func TestTickNoPendingSkipsProvider(t *testing.T) {
	waits := newFakeWaits()
	source := &fakeSource{}
	applier := &fakeApplier{waits: waits}

	r := newTestReconciler(waits, source, applier)
	require.NoError(t, r.Tick(context.Background()))
	assert.Zero(t, source.calls)
}

func TestTickIdempotentOnReplay(t *testing.T) {
	waits := newFakeWaits(7)
	source := &fakeSource{invoices: map[int64]provider.Invoice{
		7: {InvoiceID: 7, Status: provider.InvoicePaid},
	}}
	applier := &fakeApplier{waits: waits}

	r := newTestReconciler(waits, source, applier)
	require.NoError(t, r.Tick(context.Background()))

	// second tick sees no waiter and applies nothing
	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, []int64{7}, applier.applied)
}

func TestWatchInvoiceFastPath(t *testing.T) {
	waits := newFakeWaits(9)
	source := &fakeSource{invoices: map[int64]provider.Invoice{
		9: {InvoiceID: 9, Status: provider.InvoicePaid},
	}}
	applier := &fakeApplier{waits: waits}

	r := newTestReconciler(waits, source, applier)
	r.WatchInvoice(context.Background(), 9)

	assert.Equal(t, []int64{9}, applier.applied)
	assert.Equal(t, 1, source.calls)
}

func TestWatchInvoiceGivesUpAfterMaxAttempts(t *testing.T) {
	waits := newFakeWaits(11)
	source := &fakeSource{invoices: map[int64]provider.Invoice{
		11: {InvoiceID: 11, Status: provider.InvoiceActive},
	}}
	applier := &fakeApplier{waits: waits}

	r := newTestReconciler(waits, source, applier)
	r.WatchInvoice(context.Background(), 11)

	assert.Empty(t, applier.applied)
	assert.Equal(t, r.fastAttempts, source.calls)
	left, _ := waits.PendingIDs(context.Background(), nil)
	assert.Equal(t, []int64{11}, left)
}

func TestTickCircuitOpensOnProviderFailure(t *testing.T) {
	waits := newFakeWaits(1)
	source := &fakeSource{err: assert.AnError}
	applier := &fakeApplier{waits: waits}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(nil, waits, source, applier, guard.NewCircuitBreaker(1, time.Minute), time.Second, logger)

	require.Error(t, r.Tick(context.Background()))
	// circuit now open, tick short-circuits without calling the provider
	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, 1, source.calls)
}
