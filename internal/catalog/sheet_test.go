package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidestake/exchange/internal/domain"
)

var header = []string{"external_id", "title", "p1", "p2", "photo_url", "starts_at", "status", "description", "winner"}

func TestParseFights(t *testing.T) {
	grid := [][]string{
		header,
		{"evt-1", "Alpha vs Beta", "Alpha", "Beta", "https://img/1.jpg", "2026-09-10 20:00", "upcoming", "main card", ""},
		{"", "Gamma vs Delta", "Gamma", "Delta", "", "2026-09-11", "live", "", ""},
		{"evt-3", "Omega vs Sigma", "Omega", "Sigma", "", "", "done", "", "2"},
	}

	fights, skipped := ParseFights(grid)
	require.Len(t, fights, 3)
	assert.Empty(t, skipped)

	f := fights[0]
	require.NotNil(t, f.ExternalID)
	assert.Equal(t, "evt-1", *f.ExternalID)
	assert.Equal(t, "Alpha vs Beta", f.Title)
	assert.Equal(t, domain.FightUpcoming, f.Status)
	require.NotNil(t, f.StartsAt)
	assert.Equal(t, time.Date(2026, 9, 10, 20, 0, 0, 0, time.UTC), *f.StartsAt)
	require.NotNil(t, f.PhotoURL)
	assert.Nil(t, f.WinnerSide)

	assert.Nil(t, fights[1].ExternalID)
	assert.Equal(t, domain.FightLive, fights[1].Status)
	require.NotNil(t, fights[1].StartsAt)

	require.NotNil(t, fights[2].WinnerSide)
	assert.Equal(t, domain.Side2, *fights[2].WinnerSide)
	assert.Equal(t, domain.FightDone, fights[2].Status)
}

func TestParseFightsSkipsIncompleteRows(t *testing.T) {
	grid := [][]string{
		header,
		{"", "", "Alpha", "Beta", "", "", "", "", ""},
		{"", "No sides", "", "", "", "", "", "", ""},
		{"", "Ok", "A", "B", "", "", "", "", ""},
	}

	fights, skipped := ParseFights(grid)
	assert.Len(t, fights, 1)
	assert.Len(t, skipped, 2)
}

func TestParseFightsUnknownStatusDefaultsUpcoming(t *testing.T) {
	grid := [][]string{
		header,
		{"", "A vs B", "A", "B", "", "", "postponed", "", ""},
	}
	fights, _ := ParseFights(grid)
	require.Len(t, fights, 1)
	assert.Equal(t, domain.FightUpcoming, fights[0].Status)
}

func TestParseFightsIgnoresWinnerWhenNotDone(t *testing.T) {
	grid := [][]string{
		header,
		{"", "A vs B", "A", "B", "", "", "live", "", "1"},
	}
	fights, _ := ParseFights(grid)
	require.Len(t, fights, 1)
	assert.Nil(t, fights[0].WinnerSide)
}

func TestParseFightsReorderedColumns(t *testing.T) {
	grid := [][]string{
		{"title", "p2", "p1", "status"},
		{"A vs B", "B", "A", "today"},
	}
	fights, _ := ParseFights(grid)
	require.Len(t, fights, 1)
	assert.Equal(t, "A", fights[0].Side1Name)
	assert.Equal(t, "B", fights[0].Side2Name)
	assert.Equal(t, domain.FightToday, fights[0].Status)
}

func TestSheetClientFetchRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/spreadsheets/sheet-id/values/Fights!A:I", r.URL.Path)
		assert.Equal(t, "api-key", r.URL.Query().Get("key"))

		json.NewEncoder(w).Encode(map[string]any{
			"range":  "Fights!A1:I3",
			"values": [][]string{header, {"evt-1", "A vs B", "A", "B", "", "", "upcoming", "", ""}},
		})
	}))
	defer srv.Close()

	c := NewSheetClient(srv.URL, "api-key", "sheet-id", "Fights!A:I")
	grid, err := c.FetchRows(context.Background())
	require.NoError(t, err)
	require.Len(t, grid, 2)
	assert.Equal(t, "A vs B", grid[1][1])
}

func TestSheetClientFetchRowsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	c := NewSheetClient(srv.URL, "bad-key", "sheet-id", "Fights!A:I")
	_, err := c.FetchRows(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
