package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryMemo_SetAndGet(t *testing.T) {
	memo := NewMemoryMemo(30*time.Minute, 512)
	ctx := context.Background()

	want := Result{
		Outcome: OutcomeFound,
		Record:  &Record{UserID: "usr_1", UserName: "Foo", IsYoinker: true},
	}
	if err := memo.Set(ctx, "usr_1", want); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := memo.Get(ctx, "usr_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Outcome != OutcomeFound || got.Record.UserName != "Foo" {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestMemoryMemo_Miss(t *testing.T) {
	memo := NewMemoryMemo(0, 0)

	if _, err := memo.Get(context.Background(), "usr_unknown"); err != ErrMemoMiss {
		t.Errorf("Get() error = %v, want ErrMemoMiss", err)
	}
}

func TestMemoryMemo_TTLBoundary(t *testing.T) {
	memo := NewMemoryMemo(30*time.Minute, 512)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	memo.now = func() time.Time { return now }
	ctx := context.Background()

	if err := memo.Set(ctx, "usr_1", Result{Outcome: OutcomeNotFound}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Hit just inside the TTL.
	now = base.Add(29*time.Minute + 59*time.Second)
	if _, err := memo.Get(ctx, "usr_1"); err != nil {
		t.Errorf("Get() at T+29:59 error = %v, want hit", err)
	}

	// Miss just past it.
	now = base.Add(30*time.Minute + 1*time.Second)
	if _, err := memo.Get(ctx, "usr_1"); err != ErrMemoMiss {
		t.Errorf("Get() at T+30:01 error = %v, want ErrMemoMiss", err)
	}
}

func TestMemoryMemo_CapacityClear(t *testing.T) {
	memo := NewMemoryMemo(30*time.Minute, 512)
	ctx := context.Background()

	for i := 0; i < 512; i++ {
		id := fmt.Sprintf("usr_%03d", i)
		if err := memo.Set(ctx, id, Result{Outcome: OutcomeNotFound}); err != nil {
			t.Fatalf("Set(%s) error = %v", id, err)
		}
	}
	if memo.Len() != 512 {
		t.Fatalf("Len() = %d after 512 inserts, want 512", memo.Len())
	}

	// The 513th distinct entry trips the full clear; nothing survives,
	// not even the entry that triggered it.
	if err := memo.Set(ctx, "usr_512", Result{Outcome: OutcomeNotFound}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if memo.Len() != 0 {
		t.Fatalf("Len() = %d after capacity clear, want 0", memo.Len())
	}

	for i := 0; i < 512; i++ {
		id := fmt.Sprintf("usr_%03d", i)
		if _, err := memo.Get(ctx, id); err != ErrMemoMiss {
			t.Fatalf("Get(%s) error = %v after clear, want ErrMemoMiss", id, err)
		}
	}
}

func TestMemoryMemo_OverwriteRefreshesTimestamp(t *testing.T) {
	memo := NewMemoryMemo(30*time.Minute, 512)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	memo.now = func() time.Time { return now }
	ctx := context.Background()

	memo.Set(ctx, "usr_1", Result{Outcome: OutcomeNotFound})

	now = base.Add(20 * time.Minute)
	memo.Set(ctx, "usr_1", Result{Outcome: OutcomeNotFound})

	// 40 minutes after the first write, 20 after the second: still a hit.
	now = base.Add(40 * time.Minute)
	if _, err := memo.Get(ctx, "usr_1"); err != nil {
		t.Errorf("Get() error = %v after overwrite, want hit", err)
	}
}
