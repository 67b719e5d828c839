package quota

import "time"

// UsageStats is the persisted per-identity counter document.
type UsageStats struct {
	DailyCount           int    `json:"daily_count"`
	MonthlyCount         int    `json:"monthly_count"`
	LastResetDate        string `json:"last_reset_date"`         // YYYY-MM-DD
	LastMonthlyResetDate string `json:"last_monthly_reset_date"` // YYYY-MM
}

// Limits caps sends per calendar day and month.
type Limits struct {
	Daily   int `json:"daily"`
	Monthly int `json:"monthly"`
}

// Tiers maps a tier name to its limits.
type Tiers map[string]Limits

// Identity is the quota subject: a caller ID and the tier it is billed on.
type Identity struct {
	ID   string
	Tier string
}

type LimitKind string

const (
	LimitDaily   LimitKind = "daily"
	LimitMonthly LimitKind = "monthly"
)

// Decision is the outcome of a quota check. ResetTime is set only when the
// request is denied.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Limit     LimitKind  `json:"limit,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	ResetTime *time.Time `json:"reset_time,omitempty"`
}

// Remaining reports what an identity can still send. Values never go below zero.
type Remaining struct {
	Tier             string    `json:"tier"`
	DailyLimit       int       `json:"daily_limit"`
	DailyUsed        int       `json:"daily_used"`
	DailyRemaining   int       `json:"daily_remaining"`
	DailyResetTime   time.Time `json:"daily_reset_time"`
	MonthlyLimit     int       `json:"monthly_limit"`
	MonthlyUsed      int       `json:"monthly_used"`
	MonthlyRemaining int       `json:"monthly_remaining"`
	MonthlyResetTime time.Time `json:"monthly_reset_time"`
}
