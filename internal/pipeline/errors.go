package pipeline

import "fmt"

// Stages recorded in failures.csv.
const (
	StagePrices    = "prices"
	StageCondition = "condition"
	StageTrades    = "trades"
	StageClassify  = "classify"
)

// StageError ties a per-market failure to the step that produced it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
