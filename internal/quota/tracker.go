package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aiox-platform/mailgate/internal/store"
)

const (
	keyPrefix = "email_usage:"
	statsTTL  = 60 * 24 * time.Hour
)

var ErrEmptyIdentity = errors.New("quota identity must not be empty")

// Tracker enforces per-identity daily and monthly send limits. Counters are
// rolled over lazily on every read and write, so nothing runs at midnight.
//
// Concurrent RecordSent calls for the same identity race on the stored
// document and the last write wins; limits are advisory under contention.
type Tracker struct {
	kv          store.KV
	tiers       Tiers
	defaultTier string
	loc         *time.Location
	now         func() time.Time
}

type Option func(*Tracker)

// WithLocation sets the calendar used for day and month boundaries.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) { t.loc = loc }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithDefaultTier sets the tier used for identities whose tier is unknown.
func WithDefaultTier(name string) Option {
	return func(t *Tracker) { t.defaultTier = name }
}

func NewTracker(kv store.KV, tiers Tiers, opts ...Option) *Tracker {
	t := &Tracker{
		kv:          kv,
		tiers:       tiers,
		defaultTier: "free",
		loc:         time.UTC,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LimitsFor resolves a tier name, falling back to the default tier.
func (t *Tracker) LimitsFor(tier string) (string, Limits) {
	if l, ok := t.tiers[tier]; ok {
		return tier, l
	}
	return t.defaultTier, t.tiers[t.defaultTier]
}

// CheckAllowed reports whether id may send one more email. It never writes.
func (t *Tracker) CheckAllowed(ctx context.Context, id Identity) (Decision, error) {
	return t.CheckAllowedN(ctx, id, 1)
}

// CheckAllowedN reports whether id may send n more emails. The daily limit is
// evaluated before the monthly one.
func (t *Tracker) CheckAllowedN(ctx context.Context, id Identity, n int) (Decision, error) {
	if n < 1 {
		n = 1
	}
	now := t.clock()
	stats, err := t.load(ctx, id.ID, now)
	if err != nil {
		return Decision{}, err
	}
	stats = RolledOver(stats, now)
	_, limits := t.LimitsFor(id.Tier)

	if stats.DailyCount+n > limits.Daily {
		reset := nextDay(now)
		return Decision{
			Limit:     LimitDaily,
			Reason:    exceededReason("Daily", limits.Daily, stats.DailyCount, n),
			ResetTime: &reset,
		}, nil
	}
	if stats.MonthlyCount+n > limits.Monthly {
		reset := nextMonth(now)
		return Decision{
			Limit:     LimitMonthly,
			Reason:    exceededReason("Monthly", limits.Monthly, stats.MonthlyCount, n),
			ResetTime: &reset,
		}, nil
	}
	return Decision{Allowed: true}, nil
}

// RecordSent counts one confirmed send for the identity.
func (t *Tracker) RecordSent(ctx context.Context, identityID string) error {
	return t.RecordSentN(ctx, identityID, 1)
}

// RecordSentN counts n confirmed sends in a single read-modify-write.
func (t *Tracker) RecordSentN(ctx context.Context, identityID string, n int) error {
	if n <= 0 {
		return nil
	}
	now := t.clock()
	stats, err := t.load(ctx, identityID, now)
	if err != nil {
		return err
	}
	stats = RolledOver(stats, now)
	stats.DailyCount += n
	stats.MonthlyCount += n
	return t.save(ctx, identityID, stats)
}

// Remaining reports the identity's unused allowance without modifying state.
func (t *Tracker) Remaining(ctx context.Context, id Identity) (*Remaining, error) {
	now := t.clock()
	stats, err := t.load(ctx, id.ID, now)
	if err != nil {
		return nil, err
	}
	stats = RolledOver(stats, now)
	tier, limits := t.LimitsFor(id.Tier)

	return &Remaining{
		Tier:             tier,
		DailyLimit:       limits.Daily,
		DailyUsed:        stats.DailyCount,
		DailyRemaining:   max(0, limits.Daily-stats.DailyCount),
		DailyResetTime:   nextDay(now),
		MonthlyLimit:     limits.Monthly,
		MonthlyUsed:      stats.MonthlyCount,
		MonthlyRemaining: max(0, limits.Monthly-stats.MonthlyCount),
		MonthlyResetTime: nextMonth(now),
	}, nil
}

// ResetUsage writes a zero state anchored at the current day and month.
func (t *Tracker) ResetUsage(ctx context.Context, identityID string) error {
	if identityID == "" {
		return ErrEmptyIdentity
	}
	return t.save(ctx, identityID, freshStats(t.clock()))
}

// Usage returns the stored counters as they are, without rollover.
func (t *Tracker) Usage(ctx context.Context, identityID string) (UsageStats, error) {
	return t.load(ctx, identityID, t.clock())
}

func (t *Tracker) clock() time.Time {
	return t.now().In(t.loc)
}

func (t *Tracker) load(ctx context.Context, identityID string, now time.Time) (UsageStats, error) {
	if identityID == "" {
		return UsageStats{}, ErrEmptyIdentity
	}
	raw, err := t.kv.Get(ctx, keyPrefix+identityID)
	if errors.Is(err, store.ErrNotFound) {
		return freshStats(now), nil
	}
	if err != nil {
		return UsageStats{}, fmt.Errorf("loading usage for %s: %w", identityID, err)
	}

	var stats UsageStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return UsageStats{}, fmt.Errorf("decoding usage for %s: %w", identityID, err)
	}
	return stats, nil
}

func (t *Tracker) save(ctx context.Context, identityID string, stats UsageStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding usage: %w", err)
	}
	if err := t.kv.Put(ctx, keyPrefix+identityID, data, statsTTL); err != nil {
		return fmt.Errorf("saving usage for %s: %w", identityID, err)
	}
	return nil
}

func exceededReason(period string, limit, used, n int) string {
	if n == 1 {
		return fmt.Sprintf("%s limit of %d emails exceeded", period, limit)
	}
	return fmt.Sprintf("%s limit of %d emails exceeded: %d requested, %d remaining",
		period, limit, n, max(0, limit-used))
}
