package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"bbdc_booking_monitor/internal/storage/models"
)

func testAuditLog(t *testing.T) *SQLiteAuditLog {
	t.Helper()
	log, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test audit log: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestRecordPoll_RoundTrip(t *testing.T) {
	log := testAuditLog(t)
	ctx := context.Background()

	rec := &models.PollRecord{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Outcome:   models.OutcomeOK,
		SlotsSeen: 12,
		SlotsNew:  3,
	}
	if err := log.RecordPoll(ctx, rec); err != nil {
		t.Fatalf("Failed to record poll: %v", err)
	}

	got, err := log.RecentPolls(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to query polls: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(got))
	}
	if got[0].ID != rec.ID || got[0].Outcome != models.OutcomeOK || got[0].SlotsSeen != 12 || got[0].SlotsNew != 3 {
		t.Errorf("Record mismatch: %+v", got[0])
	}
}

func TestRecentPolls_OrderAndLimit(t *testing.T) {
	log := testAuditLog(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		rec := &models.PollRecord{
			ID:        uuid.New().String(),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Outcome:   models.OutcomeOK,
		}
		if err := log.RecordPoll(ctx, rec); err != nil {
			t.Fatalf("Failed to record poll %d: %v", i, err)
		}
	}

	got, err := log.RecentPolls(ctx, 2)
	if err != nil {
		t.Fatalf("Failed to query polls: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected limit of 2 records, got %d", len(got))
	}
	// Свежие записи первыми
	if !got[0].StartedAt.After(got[1].StartedAt) {
		t.Errorf("Expected records in descending order, got %v then %v", got[0].StartedAt, got[1].StartedAt)
	}
}

func TestRecordNotification_RoundTrip(t *testing.T) {
	log := testAuditLog(t)
	ctx := context.Background()

	rec := &models.NotificationRecord{
		ID:       uuid.New().String(),
		SentAt:   time.Now(),
		Title:    "🎯 2 slots available",
		Body:     "2026-09-05 SAT 09:50–11:30 (Peak)",
		Channels: "desktop,telegram",
	}
	if err := log.RecordNotification(ctx, rec); err != nil {
		t.Fatalf("Failed to record notification: %v", err)
	}

	got, err := log.RecentNotifications(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to query notifications: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(got))
	}
	if got[0].Title != rec.Title || got[0].Channels != rec.Channels {
		t.Errorf("Record mismatch: %+v", got[0])
	}
}

func TestPing(t *testing.T) {
	log := testAuditLog(t)
	if err := log.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
