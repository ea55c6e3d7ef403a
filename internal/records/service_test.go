package records

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/crypto"
)

func testService(t *testing.T, now time.Time) (*Service, []byte) {
	t.Helper()
	dek := make([]byte, crypto.DEKSize)
	if _, err := rand.Read(dek); err != nil {
		t.Fatalf("rand: %v", err)
	}
	s := NewService(NewMemoryStore(), log.New(io.Discard, "", 0))
	s.now = func() time.Time { return now }
	return s, dek
}

func f(v float64) *float64 { return &v }

func TestSyncAndRangeRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s, dek := testService(t, now)
	ctx := context.Background()

	days := []DayPayload{
		{
			Date:    "2026-08-24",
			Metrics: SleepMetrics{TotalMinutes: f(431), DeepMinutes: f(72), Efficiency: f(0.91)},
			Segments: []SleepSegment{
				{Stage: "deep", Start: now.Add(-14 * time.Hour), End: now.Add(-13 * time.Hour)},
			},
			Events: []BehaviorEvent{
				{Category: "caffeine", Label: "espresso", At: now.Add(-20 * time.Hour)},
			},
		},
		{
			Date:    "2026-08-23",
			Metrics: SleepMetrics{TotalMinutes: f(402), RemMinutes: f(95)},
		},
	}

	n, syncedAt, err := s.Sync(ctx, "install-1", dek, days)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 2 || !syncedAt.Equal(now) {
		t.Fatalf("sync returned n=%d syncedAt=%v", n, syncedAt)
	}

	got, err := s.RangeQuery(ctx, "install-1", dek, "2026-08-23", "2026-08-24")
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 days, got %d", len(got))
	}
	if got[0].Date != "2026-08-23" || got[1].Date != "2026-08-24" {
		t.Fatalf("rows not ascending: %s, %s", got[0].Date, got[1].Date)
	}
	if got[1].Metrics.TotalMinutes == nil || *got[1].Metrics.TotalMinutes != 431 {
		t.Fatalf("metrics did not round-trip: %+v", got[1].Metrics)
	}
	if len(got[1].Segments) != 1 || got[1].Segments[0].Stage != "deep" {
		t.Fatalf("segments did not round-trip: %+v", got[1].Segments)
	}
}

func TestSyncReplacesSameDate(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s, dek := testService(t, now)
	ctx := context.Background()

	first := []DayPayload{{Date: "2026-08-24", Metrics: SleepMetrics{TotalMinutes: f(400)}}}
	if _, _, err := s.Sync(ctx, "install-1", dek, first); err != nil {
		t.Fatalf("sync 1: %v", err)
	}
	second := []DayPayload{{Date: "2026-08-24", Metrics: SleepMetrics{TotalMinutes: f(455)}}}
	if _, _, err := s.Sync(ctx, "install-1", dek, second); err != nil {
		t.Fatalf("sync 2: %v", err)
	}

	day, err := s.ByDate(ctx, "install-1", dek, "2026-08-24")
	if err != nil {
		t.Fatalf("byDate: %v", err)
	}
	if *day.Metrics.TotalMinutes != 455 {
		t.Fatalf("upsert did not fully replace: %v", *day.Metrics.TotalMinutes)
	}
}

func TestSyncRetentionPurge(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s, dek := testService(t, now)
	ctx := context.Background()

	old := now.AddDate(0, 0, -40).Format("2006-01-02")
	batch := []DayPayload{
		{Date: old, Metrics: SleepMetrics{TotalMinutes: f(410)}},
		{Date: "2026-08-24", Metrics: SleepMetrics{TotalMinutes: f(420)}},
	}
	if _, _, err := s.Sync(ctx, "install-1", dek, batch); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if _, err := s.ByDate(ctx, "install-1", dek, old); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stale day purged, got %v", err)
	}
	if _, err := s.ByDate(ctx, "install-1", dek, "2026-08-24"); err != nil {
		t.Fatalf("recent day missing: %v", err)
	}
}

func TestByDateNeverSynced(t *testing.T) {
	s, dek := testService(t, time.Now())
	if _, err := s.ByDate(context.Background(), "install-1", dek, "2026-01-01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidationFailures(t *testing.T) {
	s, dek := testService(t, time.Now())
	ctx := context.Background()

	if _, err := s.ByDate(ctx, "i", dek, "08/24/2026"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad date: expected ErrValidation, got %v", err)
	}
	if _, err := s.RangeQuery(ctx, "i", dek, "2026-08-24", "2026-08-01"); !errors.Is(err, ErrValidation) {
		t.Fatalf("inverted range: expected ErrValidation, got %v", err)
	}
	if _, err := s.RangeQuery(ctx, "i", dek, "2026-01-01", "2026-08-01"); !errors.Is(err, ErrValidation) {
		t.Fatalf("oversized range: expected ErrValidation, got %v", err)
	}
	if _, err := s.Recent(ctx, "i", dek, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("days=0: expected ErrValidation, got %v", err)
	}
	if _, err := s.Recent(ctx, "i", dek, MaxWindowDays+1); !errors.Is(err, ErrValidation) {
		t.Fatalf("days too big: expected ErrValidation, got %v", err)
	}
	if _, _, err := s.Sync(ctx, "i", dek, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty batch: expected ErrValidation, got %v", err)
	}
	if _, _, err := s.Sync(ctx, "i", dek, []DayPayload{{Date: "yesterday"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad batch date: expected ErrValidation, got %v", err)
	}
}

func TestWrongDEKFailsClosed(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s, dek := testService(t, now)
	ctx := context.Background()

	if _, _, err := s.Sync(ctx, "install-1", dek, []DayPayload{{Date: "2026-08-24"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	other := make([]byte, crypto.DEKSize)
	if _, err := rand.Read(other); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := s.ByDate(ctx, "install-1", other, "2026-08-24"); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestStatsNullSkippingAverages(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s, dek := testService(t, now)
	ctx := context.Background()

	batch := []DayPayload{
		{
			Date:    "2026-08-24",
			Metrics: SleepMetrics{TotalMinutes: f(400), HRV: f(60)},
			Events: []BehaviorEvent{
				{Category: "exercise", At: now, DurationMinutes: 30},
				{Category: "caffeine", At: now},
			},
		},
		{
			Date:    "2026-08-23",
			Metrics: SleepMetrics{TotalMinutes: f(440)}, // HRV not measured
			Events: []BehaviorEvent{
				{Category: "exercise", At: now, DurationMinutes: 45},
			},
		},
		{
			Date: "2026-08-22", // nothing measured
		},
	}
	if _, _, err := s.Sync(ctx, "install-1", dek, batch); err != nil {
		t.Fatalf("sync: %v", err)
	}

	stats, err := s.StatsWindow(ctx, "install-1", dek, 7)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.RecordCount != 3 {
		t.Fatalf("record count %d", stats.RecordCount)
	}
	if stats.Averages.TotalMinutes == nil || *stats.Averages.TotalMinutes != 420 {
		t.Fatalf("total average wrong: %+v", stats.Averages.TotalMinutes)
	}
	// HRV was measured on one day only; the nil days must not drag the
	// average down.
	if stats.Averages.HRV == nil || *stats.Averages.HRV != 60 {
		t.Fatalf("hrv average wrong: %+v", stats.Averages.HRV)
	}
	if stats.Averages.DeepMinutes != nil {
		t.Fatalf("never-measured metric averaged: %v", *stats.Averages.DeepMinutes)
	}
	if stats.EventMinutes["exercise"] != 75 {
		t.Fatalf("exercise minutes %v", stats.EventMinutes["exercise"])
	}
	if stats.EventCounts["caffeine"] != 1 {
		t.Fatalf("caffeine count %v", stats.EventCounts["caffeine"])
	}
}

func TestEventsQuery(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s, dek := testService(t, now)
	ctx := context.Background()

	batch := []DayPayload{
		{Date: "2026-08-24", Events: []BehaviorEvent{{Category: "screen", At: now, DurationMinutes: 90}}},
		{Date: "2026-08-25", Events: []BehaviorEvent{{Category: "alcohol", At: now}}},
	}
	if _, _, err := s.Sync(ctx, "install-1", dek, batch); err != nil {
		t.Fatalf("sync: %v", err)
	}

	days, err := s.Events(ctx, "install-1", dek, 7)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(days) != 2 || days[0].Date != "2026-08-24" || days[1].Date != "2026-08-25" {
		t.Fatalf("unexpected event days: %+v", days)
	}
	if days[0].Events[0].Category != "screen" {
		t.Fatalf("event payload mismatch: %+v", days[0].Events)
	}
}

func TestInstallIsolation(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	s, dek := testService(t, now)
	ctx := context.Background()

	if _, _, err := s.Sync(ctx, "install-1", dek, []DayPayload{{Date: "2026-08-24"}}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := s.ByDate(ctx, "install-2", dek, "2026-08-24"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-install read succeeded: %v", err)
	}
}
