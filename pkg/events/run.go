package events

// Run event types.
const (
	TypeRunStarted        = "run.started"
	TypeBatchCompleted    = "batch.completed"
	TypeBatchFailed       = "batch.failed"
	TypeCheckpointWritten = "checkpoint.written"
	TypeRunInterrupted    = "run.interrupted"
	TypeRunCompleted      = "run.completed"
)

// RunStarted is emitted once before the first batch.
type RunStarted struct {
	Total     int `json:"total"`
	Offset    int `json:"offset"`
	BatchSize int `json:"batch_size"`
	Batches   int `json:"batches"`
}

// BatchDone is the payload of batch.completed and batch.failed.
type BatchDone struct {
	Number   int    `json:"number"`
	FirstIdx int    `json:"first_idx"`
	Size     int    `json:"size"`
	Answered int    `json:"answered"`
	Empty    int    `json:"empty"`
	Error    string `json:"error,omitempty"`
	Millis   int64  `json:"millis"`
}

// CheckpointWritten is emitted after an artifact is durable on disk.
type CheckpointWritten struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Records int    `json:"records"`
}

// RunFinished is the payload of run.completed and run.interrupted.
type RunFinished struct {
	Total         int   `json:"total"`
	Processed     int   `json:"processed"`
	Answered      int   `json:"answered"`
	Empty         int   `json:"empty"`
	FailedBatches int   `json:"failed_batches"`
	NextOffset    int   `json:"next_offset"`
	Millis        int64 `json:"millis"`
}
