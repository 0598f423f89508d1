package worklog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Worklog is a single time entry fetched from the external tracker.
type Worklog struct {
	ID               int64  `json:"id"`
	IssueKey         string `json:"issue_key"`
	IssueTitle       string `json:"issue_title"`
	Description      string `json:"description"`
	TimeSpentSeconds int64  `json:"time_spent_seconds"`
}

var secondsPerHour = decimal.NewFromInt(3600)

// TimeSpent returns the logged time in hours.
func (w *Worklog) TimeSpent() decimal.Decimal {
	return decimal.NewFromInt(w.TimeSpentSeconds).Div(secondsPerHour).Round(8)
}

// Source fetches worklogs for a provider over a date range. A disabled
// source must not be fetched from; callers check Enabled first.
type Source interface {
	Enabled() bool
	Fetch(ctx context.Context, username string, from, to time.Time) ([]Worklog, error)
}
