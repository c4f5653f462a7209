package domain

// ItemResult is the outcome for one item. Field order matches the
// checkpoint wire format: question_id, hypothesis, idx.
type ItemResult struct {
	// QuestionID copies the originating item's identifier.
	QuestionID string `json:"question_id"`

	// Hypothesis is the generated answer, or "" when processing failed.
	Hypothesis string `json:"hypothesis"`

	// Idx is the absolute position of the item in the unsliced input.
	Idx int `json:"idx"`
}

// EmptyResult builds the failure record for an item: same identity and
// index, no hypothesis.
func EmptyResult(item Item, idx int) ItemResult {
	return ItemResult{QuestionID: item.QuestionID, Hypothesis: "", Idx: idx}
}

// HasAnswer reports whether a non-empty hypothesis was produced.
func (r ItemResult) HasAnswer() bool { return r.Hypothesis != "" }
