package segment

import (
	"sync"
	"testing"
)

func TestGenerator_Next(t *testing.T) {
	gen := New()

	seg1 := gen.Next("sess-123")
	if seg1 != "sess-123-seg-1" {
		t.Errorf("expected 'sess-123-seg-1', got %s", seg1)
	}

	seg2 := gen.Next("sess-123")
	if seg2 != "sess-123-seg-2" {
		t.Errorf("expected 'sess-123-seg-2', got %s", seg2)
	}

	seg3 := gen.Next("sess-456")
	if seg3 != "sess-456-seg-3" {
		t.Errorf("expected 'sess-456-seg-3', got %s", seg3)
	}
}

func TestGenerator_ThreadSafety(t *testing.T) {
	gen := New()
	numGoroutines := 100
	resultsPerGoroutine := 10

	var wg sync.WaitGroup
	results := make(chan string, numGoroutines*resultsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < resultsPerGoroutine; j++ {
				results <- gen.Next("sess-concurrent")
			}
		}()
	}

	wg.Wait()
	close(results)

	// Collect all segment IDs
	seen := make(map[string]bool)
	for seg := range results {
		if seen[seg] {
			t.Errorf("duplicate segment ID generated: %s", seg)
		}
		seen[seg] = true
	}

	expectedCount := numGoroutines * resultsPerGoroutine
	if len(seen) != expectedCount {
		t.Errorf("expected %d unique segment IDs, got %d", expectedCount, len(seen))
	}
}
