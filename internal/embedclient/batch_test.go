package embedclient

import "testing"

func TestPlanBatchesPreservesOrderAndWasteBound(t *testing.T) {
	texts := []string{
		"a",
		"a very long sentence indeed that goes on and on and on and on",
		"medium length text here",
		"short",
		"tiny",
	}
	batches := planBatches(texts)

	seen := make(map[int]bool)
	for _, b := range batches {
		sum := 0
		for _, it := range b.items {
			sum += len(it.text)
			seen[it.index] = true
			if texts[it.index] != it.text {
				t.Fatalf("item at original index %d carries %q, want %q", it.index, it.text, texts[it.index])
			}
		}
		if len(b.items) > MaxBatchSize {
			t.Fatalf("batch exceeds MaxBatchSize: %d", len(b.items))
		}
		if len(b.items) > 1 {
			w := wasteRatio(b.maxLen, len(b.items)-1, sum)
			if w > MaxWasteRatio {
				t.Fatalf("batch waste ratio %f exceeds cap", w)
			}
		}
	}
	if len(seen) != len(texts) {
		t.Fatalf("expected all %d inputs accounted for, got %d", len(texts), len(seen))
	}
}

func TestPlanBatchesForcesSplitAtMaxBatchSize(t *testing.T) {
	texts := make([]string, MaxBatchSize+5)
	for i := range texts {
		texts[i] = "same length xx"
	}
	batches := planBatches(texts)
	if len(batches) < 2 {
		t.Fatalf("expected at least 2 batches for %d identical-length inputs, got %d", len(texts), len(batches))
	}
	for _, b := range batches {
		if len(b.items) > MaxBatchSize {
			t.Fatalf("batch size %d exceeds cap", len(b.items))
		}
	}
}

func TestWasteRatioMonotoneInSizeMismatch(t *testing.T) {
	// A batch of all-equal lengths has zero waste regardless of size.
	if w := wasteRatio(10, 4, 50); w != 0 {
		t.Fatalf("expected zero waste for uniform lengths, got %f", w)
	}
	// Adding a much shorter item increases waste.
	w := wasteRatio(100, 1, 110)
	if w <= 0 {
		t.Fatalf("expected positive waste when padding short items to a long max, got %f", w)
	}
}
