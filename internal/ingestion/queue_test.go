package ingestion

import "testing"

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := newWorkQueue(10)
	q.enqueue(map[string]any{"n": 1.0})
	q.enqueue(map[string]any{"n": 2.0})

	item, ok := q.dequeue()
	if !ok || item["n"] != 1.0 {
		t.Fatalf("expected first item n=1, got %v ok=%v", item, ok)
	}
	item, ok = q.dequeue()
	if !ok || item["n"] != 2.0 {
		t.Fatalf("expected second item n=2, got %v ok=%v", item, ok)
	}
}

func TestEnqueueEvictsOldestWhenFull(t *testing.T) {
	q := newWorkQueue(2)
	q.enqueue(map[string]any{"n": 1.0})
	q.enqueue(map[string]any{"n": 2.0})
	evicted, dropped := q.enqueue(map[string]any{"n": 3.0})
	if !evicted || dropped {
		t.Fatalf("expected eviction not drop, got evicted=%v dropped=%v", evicted, dropped)
	}
	if q.len() != 2 {
		t.Fatalf("expected queue to stay at capacity 2, got %d", q.len())
	}
	item, _ := q.dequeue()
	if item["n"] != 2.0 {
		t.Fatalf("expected oldest item (n=1) evicted, front is now %v", item)
	}
}

func TestCapacityCoercedToAtLeastOne(t *testing.T) {
	q := newWorkQueue(0)
	if q.capacity != 1 {
		t.Fatalf("expected capacity coerced to 1, got %d", q.capacity)
	}
}

func TestCloseUnblocksDequeue(t *testing.T) {
	q := newWorkQueue(10)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.dequeue()
		done <- ok
	}()
	q.close()
	if ok := <-done; ok {
		t.Fatal("expected dequeue on a closed empty queue to return ok=false")
	}
}

func TestCloseDrainsPendingItemsFirst(t *testing.T) {
	q := newWorkQueue(10)
	q.enqueue(map[string]any{"n": 1.0})
	q.close()

	item, ok := q.dequeue()
	if !ok || item["n"] != 1.0 {
		t.Fatalf("expected pending item to drain before close takes effect, got %v ok=%v", item, ok)
	}
	_, ok = q.dequeue()
	if ok {
		t.Fatal("expected queue exhausted after drain")
	}
}
