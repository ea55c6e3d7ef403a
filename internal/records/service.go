package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/crypto"
)

const (
	// RetentionDays is the horizon past which an install's rows are
	// purged on every sync.
	RetentionDays = 30
	// MaxWindowDays caps every windowed query to bound decrypt volume.
	MaxWindowDays = 31
	// MaxBatchDays caps one sync call.
	MaxBatchDays = 62
)

var (
	ErrValidation = errors.New("records: invalid request")

	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ValidDate reports whether s is a strict YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	if !dateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// Service is the encrypted record store's query surface. Every method
// takes the caller's already-unwrapped DEK; the service holds plaintext
// only for the brief decrypt-then-serialize step of a response.
type Service struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

func NewService(store Store, logger *log.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Sync encrypts and upserts a batch of day payloads, then purges rows
// older than the retention horizon. Upsert is keyed by (install, date,
// kind): a second sync for the same date fully replaces the prior blob.
func (s *Service) Sync(ctx context.Context, installID string, dek []byte, days []DayPayload) (int, time.Time, error) {
	if len(days) == 0 || len(days) > MaxBatchDays {
		return 0, time.Time{}, fmt.Errorf("%w: batch must contain 1-%d days", ErrValidation, MaxBatchDays)
	}
	syncedAt := s.now().UTC()

	rows := make([]Row, 0, len(days)*2)
	for _, day := range days {
		if !ValidDate(day.Date) {
			return 0, time.Time{}, fmt.Errorf("%w: bad date %q", ErrValidation, day.Date)
		}
		sleepRow, err := s.sealRow(installID, day.Date, KindSleep, sleepBlob{
			Metrics:  day.Metrics,
			Segments: day.Segments,
		}, dek, syncedAt)
		if err != nil {
			return 0, time.Time{}, err
		}
		eventsRow, err := s.sealRow(installID, day.Date, KindEvents, eventsBlob{
			Events: day.Events,
		}, dek, syncedAt)
		if err != nil {
			return 0, time.Time{}, err
		}
		rows = append(rows, sleepRow, eventsRow)
	}

	if err := s.store.UpsertBatch(ctx, rows); err != nil {
		return 0, time.Time{}, err
	}

	cutoff := syncedAt.AddDate(0, 0, -RetentionDays).Format("2006-01-02")
	if n, err := s.store.PurgeBefore(ctx, installID, cutoff); err != nil {
		s.logger.Printf("sync install=%s: retention purge: %v", installID, err)
	} else if n > 0 {
		s.logger.Printf("sync install=%s: purged %d rows before %s", installID, n, cutoff)
	}

	return len(days), syncedAt, nil
}

func (s *Service) sealRow(installID, date, kind string, blob any, dek []byte, syncedAt time.Time) (Row, error) {
	pt, err := json.Marshal(blob)
	if err != nil {
		return Row{}, err
	}
	sealed, err := crypto.Encrypt(pt, dek)
	if err != nil {
		return Row{}, err
	}
	return Row{
		InstallID:  installID,
		Date:       date,
		Kind:       kind,
		Ciphertext: sealed.Ciphertext,
		IV:         sealed.IV,
		Tag:        sealed.Tag,
		SyncedAt:   syncedAt,
	}, nil
}

// Recent returns the last n days of sleep records, ascending by date.
func (s *Service) Recent(ctx context.Context, installID string, dek []byte, days int) ([]SleepDay, error) {
	from, to, err := s.window(days)
	if err != nil {
		return nil, err
	}
	return s.sleepRange(ctx, installID, dek, from, to)
}

// ByDate returns the single sleep record for one calendar date.
func (s *Service) ByDate(ctx context.Context, installID string, dek []byte, date string) (*SleepDay, error) {
	if !ValidDate(date) {
		return nil, fmt.Errorf("%w: bad date %q", ErrValidation, date)
	}
	row, err := s.store.Get(ctx, installID, date, KindSleep)
	if err != nil {
		return nil, err
	}
	day, err := decodeSleepRow(*row, dek)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// RangeQuery returns sleep records with from <= date <= to.
func (s *Service) RangeQuery(ctx context.Context, installID string, dek []byte, from, to string) ([]SleepDay, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return s.sleepRange(ctx, installID, dek, from, to)
}

// Events returns the last n days of behavior-event records.
func (s *Service) Events(ctx context.Context, installID string, dek []byte, days int) ([]EventDay, error) {
	from, to, err := s.window(days)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Range(ctx, installID, KindEvents, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]EventDay, 0, len(rows))
	for _, row := range rows {
		var blob eventsBlob
		if err := openRow(row, dek, &blob); err != nil {
			return nil, err
		}
		out = append(out, EventDay{Date: row.Date, Events: blob.Events, SyncedAt: row.SyncedAt})
	}
	return out, nil
}

// StatsWindow decrypts every row in the window and reduces it to numeric
// averages and per-category event totals. The one query whose cost scales
// with decrypt volume rather than rows returned.
func (s *Service) StatsWindow(ctx context.Context, installID string, dek []byte, days int) (*Stats, error) {
	from, to, err := s.window(days)
	if err != nil {
		return nil, err
	}

	sleepDays, err := s.sleepRange(ctx, installID, dek, from, to)
	if err != nil {
		return nil, err
	}
	eventRows, err := s.store.Range(ctx, installID, KindEvents, from, to)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Days:         days,
		RecordCount:  len(sleepDays),
		EventMinutes: map[string]float64{},
		EventCounts:  map[string]int{},
		From:         from,
		To:           to,
	}

	var acc metricsAccumulator
	for _, day := range sleepDays {
		acc.add(day.Metrics)
	}
	stats.Averages = acc.averages()

	for _, row := range eventRows {
		var blob eventsBlob
		if err := openRow(row, dek, &blob); err != nil {
			return nil, err
		}
		for _, ev := range blob.Events {
			stats.EventMinutes[ev.Category] += ev.DurationMinutes
			stats.EventCounts[ev.Category]++
		}
	}
	return stats, nil
}

func (s *Service) sleepRange(ctx context.Context, installID string, dek []byte, from, to string) ([]SleepDay, error) {
	rows, err := s.store.Range(ctx, installID, KindSleep, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]SleepDay, 0, len(rows))
	for _, row := range rows {
		day, err := decodeSleepRow(row, dek)
		if err != nil {
			return nil, err
		}
		out = append(out, day)
	}
	return out, nil
}

func (s *Service) window(days int) (from, to string, err error) {
	if days < 1 || days > MaxWindowDays {
		return "", "", fmt.Errorf("%w: days must be 1-%d", ErrValidation, MaxWindowDays)
	}
	now := s.now().UTC()
	to = now.Format("2006-01-02")
	from = now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	return from, to, nil
}

func validateRange(from, to string) error {
	if !ValidDate(from) || !ValidDate(to) {
		return fmt.Errorf("%w: dates must be YYYY-MM-DD", ErrValidation)
	}
	start, _ := time.Parse("2006-01-02", from)
	end, _ := time.Parse("2006-01-02", to)
	if end.Before(start) {
		return fmt.Errorf("%w: from must not be after to", ErrValidation)
	}
	if end.Sub(start) > time.Duration(MaxWindowDays-1)*24*time.Hour {
		return fmt.Errorf("%w: range spans more than %d days", ErrValidation, MaxWindowDays)
	}
	return nil
}

func decodeSleepRow(row Row, dek []byte) (SleepDay, error) {
	var blob sleepBlob
	if err := openRow(row, dek, &blob); err != nil {
		return SleepDay{}, err
	}
	return SleepDay{
		Date:     row.Date,
		Metrics:  blob.Metrics,
		Segments: blob.Segments,
		SyncedAt: row.SyncedAt,
	}, nil
}

func openRow(row Row, dek []byte, out any) error {
	pt, err := crypto.Decrypt(crypto.Sealed{
		Ciphertext: row.Ciphertext,
		IV:         row.IV,
		Tag:        row.Tag,
	}, dek)
	if err != nil {
		return err
	}
	defer crypto.Zero(pt)
	return json.Unmarshal(pt, out)
}

type metricsAccumulator struct {
	sums   [8]float64
	counts [8]int
}

func (a *metricsAccumulator) add(m SleepMetrics) {
	for i, p := range m.fields() {
		if *p != nil {
			a.sums[i] += **p
			a.counts[i]++
		}
	}
}

func (a *metricsAccumulator) averages() SleepMetrics {
	var out SleepMetrics
	fields := out.fields()
	for i := range fields {
		if a.counts[i] > 0 {
			avg := a.sums[i] / float64(a.counts[i])
			*fields[i] = &avg
		}
	}
	return out
}

// fields exposes the numeric metric slots in a fixed order for the
// null-skipping reduction.
func (m *SleepMetrics) fields() [8]**float64 {
	return [8]**float64{
		&m.TotalMinutes,
		&m.DeepMinutes,
		&m.RemMinutes,
		&m.CoreMinutes,
		&m.AwakeMinutes,
		&m.Efficiency,
		&m.RestingHeartRate,
		&m.HRV,
	}
}
