package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aiox-platform/mailgate/internal/store"
)

const (
	keyPrefix  = "analytics:"
	summaryKey = keyPrefix + "summary"
	dateLayout = "2006-01-02"
	maxRange   = 366
)

var ErrInvalidRange = errors.New("invalid date range")

// Recorder accepts send events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Service keeps global per-day and all-time counters in the key-value store.
// Updates are read-modify-write and may lose increments under contention.
type Service struct {
	kv  store.KV
	loc *time.Location
	now func() time.Time
}

type Option func(*Service)

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(kv store.KV, opts ...Option) *Service {
	s := &Service{kv: kv, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Record(ctx context.Context, ev Event) error {
	at := ev.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	date := at.In(s.loc).Format(dateLayout)

	day, err := s.day(ctx, date)
	if err != nil {
		return err
	}
	day.Sent++
	if ev.Success {
		day.Success++
	} else {
		day.Failed++
	}
	if ev.TemplateID != "" {
		day.Templates[ev.TemplateID]++
	}
	if ev.Transport != "" {
		day.Transports[ev.Transport]++
	}
	if err := s.put(ctx, keyPrefix+date, day); err != nil {
		return err
	}

	sum, err := s.summary(ctx)
	if err != nil {
		return err
	}
	sum.TotalSent++
	if ev.Success {
		sum.TotalSuccess++
	} else {
		sum.TotalFailed++
	}
	sum.LastUpdated = s.now().UTC()
	return s.put(ctx, summaryKey, sum)
}

func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	sum, err := s.summary(ctx)
	if err != nil {
		return nil, err
	}
	sum.SuccessRate = SuccessRate(sum.TotalSuccess, sum.TotalSent)
	return sum, nil
}

// Daily returns the stats for date (YYYY-MM-DD), or today when date is empty.
func (s *Service) Daily(ctx context.Context, date string) (*DailyStats, error) {
	if date == "" {
		date = s.today().Format(dateLayout)
	} else if _, err := time.ParseInLocation(dateLayout, date, s.loc); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRange)
	}
	day, err := s.day(ctx, date)
	if err != nil {
		return nil, err
	}
	day.SuccessRate = SuccessRate(day.Success, day.Sent)
	return day, nil
}

// Weekly covers the last seven days including today.
func (s *Service) Weekly(ctx context.Context) (*Period, error) {
	end := s.today()
	return s.period(ctx, end.AddDate(0, 0, -6), end, false)
}

// Monthly lists the days of the current month that had any sends.
func (s *Service) Monthly(ctx context.Context) (*Period, error) {
	today := s.today()
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, -1)
	return s.period(ctx, start, end, true)
}

// Range covers start through end inclusive.
func (s *Service) Range(ctx context.Context, start, end string) (*Period, error) {
	from, err := time.ParseInLocation(dateLayout, start, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: start must be YYYY-MM-DD", ErrInvalidRange)
	}
	to, err := time.ParseInLocation(dateLayout, end, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: end must be YYYY-MM-DD", ErrInvalidRange)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end is before start", ErrInvalidRange)
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxRange {
		return nil, fmt.Errorf("%w: at most %d days", ErrInvalidRange, maxRange)
	}
	return s.period(ctx, from, to, false)
}

// Reset deletes every analytics key and reports how many were removed.
func (s *Service) Reset(ctx context.Context) (int, error) {
	keys, err := s.kv.List(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("listing analytics keys: %w", err)
	}
	for i, key := range keys {
		if err := s.kv.Delete(ctx, key); err != nil {
			return i, fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return len(keys), nil
}

func (s *Service) period(ctx context.Context, from, to time.Time, activeOnly bool) (*Period, error) {
	p := &Period{
		Start: from.Format(dateLayout),
		End:   to.Format(dateLayout),
		Days:  []DailyStats{},
	}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day, err := s.day(ctx, d.Format(dateLayout))
		if err != nil {
			return nil, err
		}
		if day.Sent > 0 {
			p.ActiveDays++
		} else if activeOnly {
			continue
		}
		day.SuccessRate = SuccessRate(day.Success, day.Sent)
		p.Days = append(p.Days, *day)
		p.Totals.Sent += day.Sent
		p.Totals.Success += day.Success
		p.Totals.Failed += day.Failed
	}
	p.Totals.SuccessRate = SuccessRate(p.Totals.Success, p.Totals.Sent)
	return p, nil
}

func (s *Service) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *Service) day(ctx context.Context, date string) (*DailyStats, error) {
	day := &DailyStats{Date: date}
	if err := s.get(ctx, keyPrefix+date, day); err != nil {
		return nil, err
	}
	if day.Templates == nil {
		day.Templates = map[string]int{}
	}
	if day.Transports == nil {
		day.Transports = map[string]int{}
	}
	return day, nil
}

func (s *Service) summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{}
	if err := s.get(ctx, summaryKey, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// get decodes key into dst, leaving dst untouched when the key is absent.
func (s *Service) get(ctx context.Context, key string, dst any) error {
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (s *Service) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.kv.Put(ctx, key, data, 0); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}
