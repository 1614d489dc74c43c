package settlement

import (
	"context"
	"io"
	"log/slog"
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

type fakeTransferer struct {
	calls []string
	err   error
}

func (f *fakeTransferer) Transfer(_ context.Context, _ int64, _ int64, spendID string) error {
	f.calls = append(f.calls, spendID)
	return f.err
}

func testEngine(tr Transferer) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(nil, tr, guard.NewCircuitBreaker(3, time.Minute),
		nil, nil, nil, nil, 0.10, 100, time.Second, logger)
}

func TestSendTransferDuplicateIsSuccess(t *testing.T) {
	tr := &fakeTransferer{err: provider.ErrDuplicateSpendID}
	e := testEngine(tr)

	err := e.sendTransfer(context.Background(), 777, 1800, "payout:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"payout:1"}, tr.calls)
}

func TestSendTransferFailureTripsCircuit(t *testing.T) {
	tr := &fakeTransferer{err: assert.AnError}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(nil, tr, guard.NewCircuitBreaker(1, time.Minute),
		nil, nil, nil, nil, 0.10, 100, time.Second, logger)

	require.Error(t, e.sendTransfer(context.Background(), 777, 1800, "payout:1"))

	// circuit open: the provider is not called again
	require.Error(t, e.sendTransfer(context.Background(), 777, 1800, "payout:2"))
	assert.Equal(t, []string{"payout:1"}, tr.calls)
}

func TestFeeBasisPointsWiring(t *testing.T) {
	e := testEngine(&fakeTransferer{})
	assert.Equal(t, int64(1000), e.feeBasisPoints)
}

type fakeFights struct {
	overdue []domain.Fight
}

func (f *fakeFights) Upsert(context.Context, repository.DBTX, *domain.Fight) (int64, error) {
	return 0, nil
}
func (f *fakeFights) PruneUntouched(context.Context, repository.DBTX, []int64) ([]int64, []int64, error) {
	return nil, nil, nil
}
func (f *fakeFights) FindByID(context.Context, repository.DBTX, int64) (*domain.Fight, error) {
	return nil, nil
}
func (f *fakeFights) LockByID(context.Context, pgx.Tx, int64) (*domain.Fight, error) {
	return nil, nil
}
func (f *fakeFights) ListUpcoming(context.Context, repository.DBTX) ([]domain.Fight, error) {
	return nil, nil
}
func (f *fakeFights) RecordResult(context.Context, repository.DBTX, int64, domain.Side) error {
	return nil
}
func (f *fakeFights) ListOverdue(context.Context, repository.DBTX, int) ([]domain.Fight, error) {
	return f.overdue, nil
}

type captureNotifier struct {
	events []domain.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n domain.Notification) {
	c.events = append(c.events, n)
}

func TestReminderNotifiesEveryAdminOnce(t *testing.T) {
	fights := &fakeFights{overdue: []domain.Fight{
		{ID: 1, Title: "Alpha vs Beta"},
		{ID: 2, Title: "Gamma vs Delta"},
	}}
	sink := &captureNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewReminder(nil, fights, sink, []int64{100, 200}, time.Second, logger)
	require.NoError(t, r.Tick(context.Background()))
	assert.Len(t, sink.events, 4)
	assert.Equal(t, domain.NotifyResultOverdue, sink.events[0].Kind)

	// repeat window suppresses the second tick
	require.NoError(t, r.Tick(context.Background()))
	assert.Len(t, sink.events, 4)
}

func TestReminderNoAdminsIsNoop(t *testing.T) {
	fights := &fakeFights{overdue: []domain.Fight{{ID: 1, Title: "Alpha vs Beta"}}}
	sink := &captureNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewReminder(nil, fights, sink, nil, time.Second, logger)
	require.NoError(t, r.Tick(context.Background()))
	assert.Empty(t, sink.events)
}
