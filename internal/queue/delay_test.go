package queue

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDelayQueuePopDueInOrder(t *testing.T) {
	t.Parallel()

	q := NewMemoryDelayQueue()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for id, offset := range map[string]time.Duration{
		"pub-late":   10 * time.Minute,
		"pub-first":  time.Minute,
		"pub-second": 2 * time.Minute,
	} {
		if err := q.Schedule(ctx, id, base.Add(offset)); err != nil {
			t.Fatalf("Schedule(%s) error = %v", id, err)
		}
	}

	due, err := q.PopDue(ctx, base.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatalf("PopDue() error = %v", err)
	}
	if len(due) != 2 || due[0] != "pub-first" || due[1] != "pub-second" {
		t.Fatalf("PopDue() = %v, want [pub-first pub-second]", due)
	}

	due, err = q.PopDue(ctx, base.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatalf("PopDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("second PopDue() = %v, want empty", due)
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestMemoryDelayQueueRescheduleAndRemove(t *testing.T) {
	t.Parallel()

	q := NewMemoryDelayQueue()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	_ = q.Schedule(ctx, "pub-1", base.Add(time.Hour))
	_ = q.Schedule(ctx, "pub-1", base.Add(time.Minute))
	_ = q.Schedule(ctx, "pub-2", base.Add(time.Minute))

	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after reschedule", q.Len())
	}

	if err := q.Remove(ctx, "pub-2"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	due, _ := q.PopDue(ctx, base.Add(2*time.Minute), 10)
	if len(due) != 1 || due[0] != "pub-1" {
		t.Fatalf("PopDue() = %v, want [pub-1]", due)
	}
}

func TestMemoryDelayQueueLimit(t *testing.T) {
	t.Parallel()

	q := NewMemoryDelayQueue()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	for _, id := range []string{"a", "b", "c"} {
		_ = q.Schedule(ctx, id, base)
	}

	due, _ := q.PopDue(ctx, base, 2)
	if len(due) != 2 {
		t.Fatalf("PopDue() len = %d, want 2", len(due))
	}
	if err := q.Schedule(ctx, " ", base); err == nil {
		t.Fatal("Schedule() should reject empty id")
	}
}
