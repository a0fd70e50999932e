package journal

import (
	"context"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *SQLiteJournal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	ctx := context.Background()

	runs := []Entry{
		{Outcome: OutcomeBootstrapped, Fingerprint: "f1", Documents: 4, Chunks: 9, Duration: 1200 * time.Millisecond},
		{Outcome: OutcomeUpToDate},
		{Outcome: OutcomeFailed, Error: "source unreachable"},
	}
	for _, e := range runs {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}

	// Newest first.
	if got[0].Outcome != OutcomeFailed || got[0].Error != "source unreachable" {
		t.Errorf("unexpected newest entry: %+v", got[0])
	}
	if got[2].Outcome != OutcomeBootstrapped || got[2].Fingerprint != "f1" ||
		got[2].Documents != 4 || got[2].Chunks != 9 {
		t.Errorf("unexpected oldest entry: %+v", got[2])
	}
	if got[2].Duration != 1200*time.Millisecond {
		t.Errorf("duration = %v, want 1.2s", got[2].Duration)
	}
}

func TestRecent_HonoursLimit(t *testing.T) {
	t.Parallel()

	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := j.Record(ctx, Entry{Outcome: OutcomeUpToDate}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 entries, got %d", len(got))
	}
}
