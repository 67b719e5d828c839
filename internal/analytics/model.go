package analytics

import (
	"math"
	"time"
)

// Event is one attempted send.
type Event struct {
	Identity   string
	Kind       string
	Success    bool
	Transport  string
	TemplateID string
	MessageID  string
	Error      string
	Timestamp  time.Time
}

// DailyStats is stored under analytics:YYYY-MM-DD.
type DailyStats struct {
	Date        string         `json:"date"`
	Sent        int            `json:"sent"`
	Success     int            `json:"success"`
	Failed      int            `json:"failed"`
	Templates   map[string]int `json:"templates"`
	Transports  map[string]int `json:"transports"`
	SuccessRate float64        `json:"success_rate"`
}

// Summary is stored under analytics:summary.
type Summary struct {
	TotalSent    int       `json:"total_sent"`
	TotalSuccess int       `json:"total_success"`
	TotalFailed  int       `json:"total_failed"`
	SuccessRate  float64   `json:"success_rate"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Totals aggregates a run of days.
type Totals struct {
	Sent        int     `json:"sent"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Period is a multi-day view.
type Period struct {
	Start      string       `json:"start"`
	End        string       `json:"end"`
	ActiveDays int          `json:"active_days"`
	Days       []DailyStats `json:"days"`
	Totals     Totals       `json:"totals"`
}

// SuccessRate is success/sent as a percentage rounded to two decimals.
func SuccessRate(success, sent int) float64 {
	if sent <= 0 {
		return 0
	}
	return math.Round(float64(success)/float64(sent)*10000) / 100
}
