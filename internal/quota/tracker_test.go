package quota

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/mailgate/internal/store"
)

var testTiers = Tiers{
	"free":    {Daily: 100, Monthly: 1000},
	"premium": {Daily: 1000, Monthly: 25000},
}

func setupMiniredis(t *testing.T) (*store.RedisKV, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return store.NewRedisKV(client), s
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestTracker(t *testing.T, at time.Time) (*Tracker, *store.RedisKV, *fakeClock) {
	t.Helper()
	kv, _ := setupMiniredis(t)
	clock := &fakeClock{t: at}
	return NewTracker(kv, testTiers, WithClock(clock.Now)), kv, clock
}

func putStats(t *testing.T, kv store.KV, id string, stats UsageStats) {
	t.Helper()
	data, err := json.Marshal(stats)
	require.NoError(t, err)
	require.NoError(t, kv.Put(context.Background(), keyPrefix+id, data, statsTTL))
}

func TestRolledOver(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   UsageStats
		want UsageStats
	}{
		{
			name: "same day keeps counters",
			in:   UsageStats{DailyCount: 5, MonthlyCount: 40, LastResetDate: "2024-03-15", LastMonthlyResetDate: "2024-03"},
			want: UsageStats{DailyCount: 5, MonthlyCount: 40, LastResetDate: "2024-03-15", LastMonthlyResetDate: "2024-03"},
		},
		{
			name: "new day resets daily only",
			in:   UsageStats{DailyCount: 5, MonthlyCount: 40, LastResetDate: "2024-03-14", LastMonthlyResetDate: "2024-03"},
			want: UsageStats{DailyCount: 0, MonthlyCount: 40, LastResetDate: "2024-03-15", LastMonthlyResetDate: "2024-03"},
		},
		{
			name: "new month resets both",
			in:   UsageStats{DailyCount: 5, MonthlyCount: 40, LastResetDate: "2024-02-29", LastMonthlyResetDate: "2024-02"},
			want: UsageStats{DailyCount: 0, MonthlyCount: 0, LastResetDate: "2024-03-15", LastMonthlyResetDate: "2024-03"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RolledOver(tt.in, now)
			assert.Equal(t, tt.want, got)
			// Applying rollover again changes nothing.
			assert.Equal(t, got, RolledOver(got, now))
		})
	}
}

func TestTracker_CheckAllowedDoesNotPersistRollover(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	tr, kv, _ := newTestTracker(t, now)
	ctx := context.Background()

	stale := UsageStats{DailyCount: 100, MonthlyCount: 200, LastResetDate: "2024-03-14", LastMonthlyResetDate: "2024-03"}
	putStats(t, kv, "alice", stale)

	for i := 0; i < 2; i++ {
		d, err := tr.CheckAllowed(ctx, Identity{ID: "alice", Tier: "free"})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	stored, err := tr.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, stale, stored)
}

func TestTracker_DailyCheckedBeforeMonthly(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	tr, kv, _ := newTestTracker(t, now)

	putStats(t, kv, "bob", UsageStats{DailyCount: 100, MonthlyCount: 1000, LastResetDate: "2024-03-15", LastMonthlyResetDate: "2024-03"})

	d, err := tr.CheckAllowed(context.Background(), Identity{ID: "bob", Tier: "free"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, LimitDaily, d.Limit)
	assert.Equal(t, "Daily limit of 100 emails exceeded", d.Reason)
	require.NotNil(t, d.ResetTime)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), *d.ResetTime)
}

func TestTracker_MonthlyLimit(t *testing.T) {
	now := time.Date(2024, 12, 20, 8, 0, 0, 0, time.UTC)
	tr, kv, _ := newTestTracker(t, now)

	putStats(t, kv, "carol", UsageStats{DailyCount: 3, MonthlyCount: 1000, LastResetDate: "2024-12-20", LastMonthlyResetDate: "2024-12"})

	d, err := tr.CheckAllowed(context.Background(), Identity{ID: "carol", Tier: "free"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, LimitMonthly, d.Limit)
	assert.Equal(t, "Monthly limit of 1000 emails exceeded", d.Reason)
	require.NotNil(t, d.ResetTime)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *d.ResetTime)
}

func TestTracker_ResetBoundary(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 0, 1, 0, time.UTC)
	tr, kv, _ := newTestTracker(t, now)

	putStats(t, kv, "dave", UsageStats{DailyCount: 100, MonthlyCount: 500, LastResetDate: "2024-03-14", LastMonthlyResetDate: "2024-03"})

	d, err := tr.CheckAllowed(context.Background(), Identity{ID: "dave", Tier: "free"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Nil(t, d.ResetTime)
}

func TestTracker_RecordSentIsMonotonic(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	tr, _, _ := newTestTracker(t, now)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, tr.RecordSent(ctx, "erin"))
	}

	stats, err := tr.Usage(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, 7, stats.DailyCount)
	assert.Equal(t, 7, stats.MonthlyCount)
	assert.Equal(t, "2024-03-15", stats.LastResetDate)
	assert.Equal(t, "2024-03", stats.LastMonthlyResetDate)
}

func TestTracker_RecordSentAcrossDays(t *testing.T) {
	tr, _, clock := newTestTracker(t, time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, tr.RecordSentN(ctx, "frank", 3))
	clock.t = time.Date(2024, 4, 1, 1, 0, 0, 0, time.UTC)
	require.NoError(t, tr.RecordSent(ctx, "frank"))

	stats, err := tr.Usage(ctx, "frank")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DailyCount)
	assert.Equal(t, 1, stats.MonthlyCount)
	assert.Equal(t, "2024-04", stats.LastMonthlyResetDate)
}

func TestTracker_RecordSetsTTL(t *testing.T) {
	kv, mr := setupMiniredis(t)
	tr := NewTracker(kv, testTiers)

	require.NoError(t, tr.RecordSent(context.Background(), "gina"))
	assert.Equal(t, statsTTL, mr.TTL(keyPrefix+"gina"))
}

func TestTracker_RemainingNeverNegative(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	tr, kv, _ := newTestTracker(t, now)

	putStats(t, kv, "hank", UsageStats{DailyCount: 150, MonthlyCount: 1200, LastResetDate: "2024-03-15", LastMonthlyResetDate: "2024-03"})

	rem, err := tr.Remaining(context.Background(), Identity{ID: "hank", Tier: "free"})
	require.NoError(t, err)
	assert.Equal(t, 0, rem.DailyRemaining)
	assert.Equal(t, 0, rem.MonthlyRemaining)
	assert.Equal(t, 150, rem.DailyUsed)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), rem.DailyResetTime)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), rem.MonthlyResetTime)
}

func TestTracker_RemainingForNewIdentity(t *testing.T) {
	tr, _, _ := newTestTracker(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC))

	rem, err := tr.Remaining(context.Background(), Identity{ID: "new", Tier: "premium"})
	require.NoError(t, err)
	assert.Equal(t, "premium", rem.Tier)
	assert.Equal(t, 1000, rem.DailyRemaining)
	assert.Equal(t, 25000, rem.MonthlyRemaining)
}

func TestTracker_UnknownTierFallsBackToDefault(t *testing.T) {
	kv, _ := setupMiniredis(t)
	tr := NewTracker(kv, testTiers, WithDefaultTier("free"))

	tier, limits := tr.LimitsFor("platinum")
	assert.Equal(t, "free", tier)
	assert.Equal(t, testTiers["free"], limits)
}

func TestTracker_CheckAllowedN(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	tr, kv, _ := newTestTracker(t, now)
	ctx := context.Background()
	id := Identity{ID: "ivy", Tier: "free"}

	putStats(t, kv, "ivy", UsageStats{DailyCount: 90, MonthlyCount: 90, LastResetDate: "2024-03-15", LastMonthlyResetDate: "2024-03"})

	d, err := tr.CheckAllowedN(ctx, id, 10)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = tr.CheckAllowedN(ctx, id, 11)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, LimitDaily, d.Limit)
	assert.Equal(t, "Daily limit of 100 emails exceeded: 11 requested, 10 remaining", d.Reason)
}

func TestTracker_ResetUsage(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	tr, _, _ := newTestTracker(t, now)
	ctx := context.Background()

	require.NoError(t, tr.RecordSentN(ctx, "jack", 42))
	require.NoError(t, tr.ResetUsage(ctx, "jack"))

	stats, err := tr.Usage(ctx, "jack")
	require.NoError(t, err)
	assert.Equal(t, UsageStats{LastResetDate: "2024-03-15", LastMonthlyResetDate: "2024-03"}, stats)
}

func TestTracker_LocationDrivesBoundaries(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	kv, _ := setupMiniredis(t)
	// 02:00 UTC on the 16th is still the 15th in New York.
	clock := &fakeClock{t: time.Date(2024, 3, 16, 2, 0, 0, 0, time.UTC)}
	tr := NewTracker(kv, testTiers, WithClock(clock.Now), WithLocation(loc))

	require.NoError(t, tr.RecordSent(context.Background(), "kim"))
	stats, err := tr.Usage(context.Background(), "kim")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", stats.LastResetDate)
}

func TestTracker_EmptyIdentity(t *testing.T) {
	tr, _, _ := newTestTracker(t, time.Now())

	_, err := tr.CheckAllowed(context.Background(), Identity{})
	assert.ErrorIs(t, err, ErrEmptyIdentity)
	assert.ErrorIs(t, tr.ResetUsage(context.Background(), ""), ErrEmptyIdentity)
}

type failingKV struct{ store.KV }

var errStorage = errors.New("storage down")

func (failingKV) Get(context.Context, string) ([]byte, error) { return nil, errStorage }

func TestTracker_StorageErrorsPropagate(t *testing.T) {
	tr := NewTracker(failingKV{}, testTiers)
	ctx := context.Background()

	_, err := tr.CheckAllowed(ctx, Identity{ID: "x"})
	assert.ErrorIs(t, err, errStorage)

	assert.ErrorIs(t, tr.RecordSent(ctx, "x"), errStorage)

	_, err = tr.Remaining(ctx, Identity{ID: "x"})
	assert.ErrorIs(t, err, errStorage)
}

func TestTracker_CorruptDocument(t *testing.T) {
	tr, kv, _ := newTestTracker(t, time.Now())
	require.NoError(t, kv.Put(context.Background(), keyPrefix+"zed", []byte("{not json"), 0))

	_, err := tr.CheckAllowed(context.Background(), Identity{ID: "zed"})
	assert.Error(t, err)
}
