package domain

import "time"

// FightStatus tracks a matchup through its catalog lifecycle.
type FightStatus string

const (
	FightUpcoming FightStatus = "upcoming"
	FightToday    FightStatus = "today"
	FightLive     FightStatus = "live"
	FightDone     FightStatus = "done"
	FightCanceled FightStatus = "canceled"
)

// OpenFightStatuses are the statuses in which a fight accepts new wagers.
var OpenFightStatuses = []FightStatus{FightUpcoming, FightToday, FightLive}

// Fight is a pairwise matchup synchronized from the external catalog.
// WinnerSide is set only when Status is done; once done with a winner the
// pair is terminal for settlement purposes.
type Fight struct {
	ID          int64       `json:"id"`
	ExternalID  *string     `json:"external_id,omitempty"`
	Title       string      `json:"title"`
	Side1Name   string      `json:"side1_name"`
	Side2Name   string      `json:"side2_name"`
	PhotoURL    *string     `json:"photo_url,omitempty"`
	Description *string     `json:"description,omitempty"`
	StartsAt    *time.Time  `json:"starts_at,omitempty"`
	Status      FightStatus `json:"status"`
	WinnerSide  *Side       `json:"winner_side,omitempty"`
}

// AcceptsWagers reports whether new intents may target this fight.
func (f *Fight) AcceptsWagers() bool {
	switch f.Status {
	case FightUpcoming, FightToday, FightLive:
		return true
	}
	return false
}

// SideName returns the display name for a side.
func (f *Fight) SideName(s Side) string {
	if s == Side1 {
		return f.Side1Name
	}
	return f.Side2Name
}
