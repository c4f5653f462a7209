package domain

// Batch is a contiguous slice of the remaining item sequence.
// All batches of a run have the same size except possibly the last.
type Batch struct {
	// Number is the 1-based position of the batch within the run.
	Number int `json:"number"`

	// Start is the position of the first item inside the sliced item list.
	Start int `json:"start"`

	// Offset is the run's starting offset into the full input.
	Offset int `json:"offset"`

	// Items are the batch members in input order.
	Items []Item `json:"items"`
}

// AbsoluteIndex returns the global idx of the item at position i in the batch.
func (b Batch) AbsoluteIndex(i int) int { return b.Offset + b.Start + i }

// FirstIndex returns the global idx of the batch's first item.
func (b Batch) FirstIndex() int { return b.AbsoluteIndex(0) }

// Len returns the number of items in the batch.
func (b Batch) Len() int { return len(b.Items) }

// EmptyResults synthesizes one empty-hypothesis result per item, used when
// the batch as a whole failed. Indexes are preserved so the one-result-per-item
// invariant still holds.
func (b Batch) EmptyResults() []ItemResult {
	out := make([]ItemResult, len(b.Items))
	for i, it := range b.Items {
		out[i] = EmptyResult(it, b.AbsoluteIndex(i))
	}
	return out
}

// Partition splits items into contiguous batches of batchSize, tagging each
// with the run offset. A batchSize below 1 is treated as 1.
func Partition(items []Item, offset, batchSize int) []Batch {
	if batchSize < 1 {
		batchSize = 1
	}
	batches := make([]Batch, 0, (len(items)+batchSize-1)/batchSize)
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		batches = append(batches, Batch{
			Number: start/batchSize + 1,
			Start:  start,
			Offset: offset,
			Items:  items[start:end],
		})
	}
	return batches
}
