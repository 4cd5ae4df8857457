package dedup

import (
	"fmt"
	"sync"
	"testing"
)

func TestRecordIfNew(t *testing.T) {
	store, err := NewStore(4)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if !store.RecordIfNew("event-1") {
		t.Error("First sighting reported as duplicate")
	}
	if store.RecordIfNew("event-1") {
		t.Error("Second sighting reported as new")
	}
	if !store.RecordIfNew("event-2") {
		t.Error("Distinct id reported as duplicate")
	}
}

func TestOldIdsAgeOut(t *testing.T) {
	store, err := NewStore(2)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	store.RecordIfNew("event-1")
	store.RecordIfNew("event-2")
	store.RecordIfNew("event-3")
	// event-1 was evicted, so it counts as new again.
	if !store.RecordIfNew("event-1") {
		t.Error("Evicted id still reported as duplicate")
	}
}

func TestDefaultSizeOnNonPositive(t *testing.T) {
	store, err := NewStore(0)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if !store.RecordIfNew("event-1") {
		t.Error("First sighting reported as duplicate")
	}
}

func TestConcurrentRecordIfNewIsExactlyOnce(t *testing.T) {
	store, err := NewStore(1024)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	var wg sync.WaitGroup
	var lock sync.Mutex
	firsts := make(map[string]int)
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("event-%d", i)
				if store.RecordIfNew(id) {
					lock.Lock()
					firsts[id]++
					lock.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	for id, count := range firsts {
		if count != 1 {
			t.Errorf("Id %s was reported new %d times", id, count)
		}
	}
	if len(firsts) != 100 {
		t.Errorf("Expected 100 distinct ids, got %d", len(firsts))
	}
}
