package model

import "time"

// RunKind distinguishes training from classification runs
type RunKind string

const (
	RunKindTrain    RunKind = "train"
	RunKindClassify RunKind = "classify"
)

// RunStatus is the state of a run: queued -> running -> {succeeded, failed}
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// Run is the persisted history entry of one executor run.
type Run struct {
	ID     string    `json:"id"`
	Kind   RunKind   `json:"kind"`
	Repo   string    `json:"repo"`
	Model  string    `json:"model,omitempty"`
	Batch  bool      `json:"batch"`
	Status RunStatus `json:"status"`
	Error  string    `json:"error,omitempty"`

	QueuedAt   time.Time `json:"queued_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Job is the input handed from the reconciler to the run executor.
type Job struct {
	Kind RunKind `json:"kind"`

	// Repo is the model repository for training, the target for classification
	Repo string `json:"repo"`

	// Model is the classifier repository of a classification
	Model string `json:"model,omitempty"`

	// Issues restricts a classification to the given issues; empty means all
	Issues []Issue `json:"issues,omitempty"`

	// Batch marks a full classification that completes the ledger record
	Batch bool `json:"batch"`
}
