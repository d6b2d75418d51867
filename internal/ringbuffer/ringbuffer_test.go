package ringbuffer

import "testing"

func TestAppendAndDrainIsSuffixOfAppends(t *testing.T) {
	b := New[int](1000)
	for i := 0; i < 50; i++ {
		b.Append(i)
	}
	got := b.Drain()
	if len(got) != 50 {
		t.Fatalf("expected 50 items, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("index %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestDrainNeverReturnsItemTwice(t *testing.T) {
	b := New[int](100)
	for i := 0; i < 10; i++ {
		b.Append(i)
	}
	first := b.Drain()
	if len(first) != 10 {
		t.Fatalf("expected 10 items, got %d", len(first))
	}
	second := b.Drain()
	if len(second) != 0 {
		t.Fatalf("expected drain to be empty after prior drain, got %d items", len(second))
	}
}

func TestDrainSwapThenAppendContinues(t *testing.T) {
	b := New[int](100)
	b.Append(1)
	b.Append(2)
	_ = b.Drain()
	b.Append(3)
	got := b.Drain()
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected [3], got %v", got)
	}
}

func TestCapacityOneNeverGrowsBeyondOne(t *testing.T) {
	b := New[int](1)
	b.Append(1)
	b.Append(2)
	b.Append(3)
	if b.Len() != 1 {
		t.Fatalf("expected len 1, got %d", b.Len())
	}
	got := b.Drain()
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected [3] (most recent survives eviction), got %v", got)
	}
}

func TestEvictOldestOnOverflow(t *testing.T) {
	b := New[int](3)
	for i := 0; i < 5; i++ {
		b.Append(i)
	}
	got := b.Drain()
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	b := New[int](10)
	for i := 0; i < 5; i++ {
		b.Append(i)
	}
	snap := b.Snapshot(2)
	if len(snap) != 2 || snap[0] != 3 || snap[1] != 4 {
		t.Fatalf("expected [3,4], got %v", snap)
	}
	if b.Len() != 5 {
		t.Fatalf("snapshot mutated buffer, len=%d", b.Len())
	}
}

func TestEmptyDrain(t *testing.T) {
	b := New[int](10)
	got := b.Drain()
	if len(got) != 0 {
		t.Fatalf("expected empty drain, got %v", got)
	}
}
