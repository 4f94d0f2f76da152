package embedclient

import "sort"

// Batching constants, binding exactly as specified: a new batch starts when
// either the size cap or the padding-waste cap would be exceeded.
const (
	MaxBatchSize  = 50
	MaxWasteRatio = 0.10
)

// indexedText pairs an input text with its original position so batches can
// be re-assembled into caller order after being sorted by length.
type indexedText struct {
	index int
	text  string
}

// batch is a set of original indices packed together for one HTTP call.
type batch struct {
	items  []indexedText
	maxLen int // length of the first (longest) item in the batch
}

// wasteRatio computes the padding waste of adding one more item to a batch
// whose current item count is size and whose maxLen is fixed (batches are
// built from a length-descending sort, so the first item a batch receives is
// always its longest). sumLens is the total length including the candidate.
func wasteRatio(maxLen int, size int, sumLens int) float64 {
	denom := float64(maxLen * (size + 1))
	if denom == 0 {
		return 0
	}
	return (denom - float64(sumLens)) / denom
}

// planBatches sorts inputs by length descending and greedily packs them,
// starting a new batch when the next item would push the batch over
// MaxBatchSize or over MaxWasteRatio padding waste.
func planBatches(texts []string) []batch {
	items := make([]indexedText, len(texts))
	for i, t := range texts {
		items[i] = indexedText{index: i, text: t}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return len(items[i].text) > len(items[j].text)
	})

	var batches []batch
	var cur batch
	var sumLens int

	for _, it := range items {
		if len(cur.items) == 0 {
			cur = batch{items: []indexedText{it}, maxLen: len(it.text)}
			sumLens = len(it.text)
			continue
		}
		candidateSum := sumLens + len(it.text)
		if len(cur.items)+1 > MaxBatchSize || wasteRatio(cur.maxLen, len(cur.items), candidateSum) > MaxWasteRatio {
			batches = append(batches, cur)
			cur = batch{items: []indexedText{it}, maxLen: len(it.text)}
			sumLens = len(it.text)
			continue
		}
		cur.items = append(cur.items, it)
		sumLens = candidateSum
	}
	if len(cur.items) > 0 {
		batches = append(batches, cur)
	}
	return batches
}
