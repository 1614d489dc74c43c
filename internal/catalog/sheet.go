// Package catalog keeps the fight table in step with an operator-maintained
// spreadsheet. The spreadsheet is the source of truth for matchups; the
// database is the source of truth for money.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sidestake/exchange/internal/domain"
)

// Expected header row, matched case-insensitively by name so operators can
// reorder columns.
const (
	colExternalID  = "external_id"
	colTitle       = "title"
	colSide1       = "p1"
	colSide2       = "p2"
	colPhotoURL    = "photo_url"
	colStartsAt    = "starts_at"
	colStatus      = "status"
	colDescription = "description"
	colWinner      = "winner"
)

// SheetClient reads a range from the Google Sheets v4 values endpoint using
// an API key. No SDK: one GET per sync is all this needs.
type SheetClient struct {
	baseURL       string
	apiKey        string
	spreadsheetID string
	readRange     string
	client        *http.Client
}

// NewSheetClient creates a sheet reader. baseURL defaults to the public
// Sheets API when empty.
func NewSheetClient(baseURL, apiKey, spreadsheetID, readRange string) *SheetClient {
	if baseURL == "" {
		baseURL = "https://sheets.googleapis.com"
	}
	return &SheetClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchRows returns the raw cell grid of the configured range, header row
// included.
func (c *SheetClient) FetchRows(ctx context.Context) ([][]string, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?key=%s",
		c.baseURL,
		url.PathEscape(c.spreadsheetID),
		url.PathEscape(c.readRange),
		url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create sheets request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sheets fetch (status %d): %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode sheets response: %w", err)
	}
	return payload.Values, nil
}

// ParseFights converts a cell grid into catalog entries. The first row must
// be the header. Rows missing a title or either side name are skipped and
// reported in the second return value.
func ParseFights(grid [][]string) ([]domain.Fight, []string) {
	if len(grid) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(grid[0]))
	for i, h := range grid[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cell := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var fights []domain.Fight
	var skipped []string
	for n, row := range grid[1:] {
		title := cell(row, colTitle)
		s1 := cell(row, colSide1)
		s2 := cell(row, colSide2)
		if title == "" || s1 == "" || s2 == "" {
			skipped = append(skipped, fmt.Sprintf("row %d: missing title or side names", n+2))
			continue
		}

		f := domain.Fight{
			Title:     title,
			Side1Name: s1,
			Side2Name: s2,
			Status:    parseStatus(cell(row, colStatus)),
		}
		if v := cell(row, colExternalID); v != "" {
			f.ExternalID = &v
		}
		if v := cell(row, colPhotoURL); v != "" {
			f.PhotoURL = &v
		}
		if v := cell(row, colDescription); v != "" {
			f.Description = &v
		}
		if ts := parseStartsAt(cell(row, colStartsAt)); ts != nil {
			f.StartsAt = ts
		}
		if w := parseWinner(cell(row, colWinner)); w != nil && f.Status == domain.FightDone {
			f.WinnerSide = w
		}

		fights = append(fights, f)
	}
	return fights, skipped
}

func parseStatus(s string) domain.FightStatus {
	switch domain.FightStatus(strings.ToLower(s)) {
	case domain.FightToday:
		return domain.FightToday
	case domain.FightLive:
		return domain.FightLive
	case domain.FightDone:
		return domain.FightDone
	case domain.FightCanceled:
		return domain.FightCanceled
	default:
		return domain.FightUpcoming
	}
}

// parseStartsAt accepts "2025-09-10 20:00" or "2025-09-10".
func parseStartsAt(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseWinner(s string) *domain.Side {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	side, err := domain.ParseSide(n)
	if err != nil {
		return nil
	}
	return &side
}
