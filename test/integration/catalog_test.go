//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidestake/exchange/internal/catalog"
	"github.com/sidestake/exchange/internal/domain"
	"github.com/sidestake/exchange/internal/guard"
	"github.com/sidestake/exchange/test/integration/testutil"
)

// gridSource serves a mutable in-memory cell grid as the catalog source.
type gridSource struct {
	grid [][]string
}

func (s *gridSource) FetchRows(context.Context) ([][]string, error) {
	return s.grid, nil
}

var sheetHeader = []string{"external_id", "title", "p1", "p2", "photo_url", "starts_at", "status", "description", "winner"}

func newSynchronizer(env *testutil.TestEnv, source catalog.RowSource) *catalog.Synchronizer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	circuit := guard.NewCircuitBreaker(100, time.Minute)
	return catalog.NewSynchronizer(env.Pool, env.Fights, source, circuit, time.Minute, logger)
}

func fightByExternal(t *testing.T, env *testutil.TestEnv, externalID string) *domain.Fight {
	t.Helper()
	var id int64
	err := env.Pool.QueryRow(testutil.Ctx(t),
		"SELECT id FROM fight WHERE external_id = $1", externalID).Scan(&id)
	require.NoError(t, err)

	fight, err := env.Fights.FindByID(testutil.Ctx(t), env.Pool, id)
	require.NoError(t, err)
	require.NotNil(t, fight)
	return fight
}

func countFights(t *testing.T, env *testutil.TestEnv) int {
	t.Helper()
	var n int
	require.NoError(t, env.Pool.QueryRow(testutil.Ctx(t), "SELECT count(*) FROM fight").Scan(&n))
	return n
}

func TestSyncUpsertsAndUpdates(t *testing.T) {
	env := testutil.NewTestEnv(t)
	source := &gridSource{grid: [][]string{
		sheetHeader,
		{"evt-1", "Silva vs Costa", "Silva", "Costa", "", "2026-09-10 20:00", "upcoming", "Main card", ""},
		{"evt-2", "Lee vs Park", "Lee", "Park", "", "", "live", "", ""},
	}}
	sync := newSynchronizer(env, source)

	require.NoError(t, sync.SyncOnce(testutil.Ctx(t)))
	require.Equal(t, 2, countFights(t, env))

	fight := fightByExternal(t, env, "evt-1")
	assert.Equal(t, "Silva vs Costa", fight.Title)
	assert.Equal(t, domain.FightUpcoming, fight.Status)
	require.NotNil(t, fight.StartsAt)
	assert.Equal(t, time.Date(2026, 9, 10, 20, 0, 0, 0, time.UTC), fight.StartsAt.UTC())

	// Operator edits the sheet; the next sync updates in place.
	source.grid[1][6] = "live"
	source.grid[1][3] = "Costa Jr"
	require.NoError(t, sync.SyncOnce(testutil.Ctx(t)))
	require.Equal(t, 2, countFights(t, env))

	fight = fightByExternal(t, env, "evt-1")
	assert.Equal(t, domain.FightLive, fight.Status)
	assert.Equal(t, "Costa Jr", fight.Side2Name)
}

func TestSyncPrunesVanishedFights(t *testing.T) {
	env := testutil.NewTestEnv(t)
	source := &gridSource{grid: [][]string{
		sheetHeader,
		{"evt-1", "Silva vs Costa", "Silva", "Costa", "", "", "upcoming", "", ""},
		{"evt-2", "Lee vs Park", "Lee", "Park", "", "", "upcoming", "", ""},
	}}
	sync := newSynchronizer(env, source)
	require.NoError(t, sync.SyncOnce(testutil.Ctx(t)))
	require.Equal(t, 2, countFights(t, env))

	source.grid = [][]string{
		sheetHeader,
		{"evt-1", "Silva vs Costa", "Silva", "Costa", "", "", "upcoming", "", ""},
	}
	require.NoError(t, sync.SyncOnce(testutil.Ctx(t)))
	require.Equal(t, 1, countFights(t, env))
	fightByExternal(t, env, "evt-1")
}

func TestPruneRefusesFightWithLiveDeal(t *testing.T) {
	env := testutil.NewTestEnv(t)
	source := &gridSource{grid: [][]string{
		sheetHeader,
		{"evt-1", "Silva vs Costa", "Silva", "Costa", "", "", "upcoming", "", ""},
	}}
	sync := newSynchronizer(env, source)
	require.NoError(t, sync.SyncOnce(testutil.Ctx(t)))

	fight := fightByExternal(t, env, "evt-1")
	ticket := createIntent(t, env, 111, fight.ID, 1, "10.00")
	env.PayAndReconcile(ticket.InvoiceID)

	// Sheet empties out, but escrowed money pins the fight in place.
	source.grid = [][]string{sheetHeader}
	require.NoError(t, sync.SyncOnce(testutil.Ctx(t)))
	require.Equal(t, 1, countFights(t, env))
}

func TestSyncSkipsMalformedRows(t *testing.T) {
	env := testutil.NewTestEnv(t)
	source := &gridSource{grid: [][]string{
		sheetHeader,
		{"evt-1", "", "Silva", "Costa", "", "", "upcoming", "", ""},
		{"evt-2", "Lee vs Park", "", "Park", "", "", "upcoming", "", ""},
		{"evt-3", "Ash vs Oak", "Ash", "Oak", "", "", "upcoming", "", ""},
	}}
	sync := newSynchronizer(env, source)

	require.NoError(t, sync.SyncOnce(testutil.Ctx(t)))
	require.Equal(t, 1, countFights(t, env))
	fightByExternal(t, env, "evt-3")
}

func TestForceSyncUnconfigured(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp, body := env.POST("/admin/sync", env.AdminToken(), nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "body: %s", body)
}

func TestSyncRecordsWinnerOnlyWhenDone(t *testing.T) {
	env := testutil.NewTestEnv(t)
	source := &gridSource{grid: [][]string{
		sheetHeader,
		{"evt-1", "Silva vs Costa", "Silva", "Costa", "", "", "done", "", "2"},
		{"evt-2", "Lee vs Park", "Lee", "Park", "", "", "upcoming", "", "1"},
	}}
	sync := newSynchronizer(env, source)
	require.NoError(t, sync.SyncOnce(testutil.Ctx(t)))

	done := fightByExternal(t, env, "evt-1")
	require.NotNil(t, done.WinnerSide)
	assert.Equal(t, domain.Side2, *done.WinnerSide)

	upcoming := fightByExternal(t, env, "evt-2")
	assert.Nil(t, upcoming.WinnerSide, "winner on a non-done row must be ignored")
}
