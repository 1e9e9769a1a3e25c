package model

import "time"

// CycleState is the position of the orchestrator inside a tick.
type CycleState int32

const (
	StateIdle CycleState = iota
	StateFetching
	StateParsing
	StateAggregating
	StateClassifying
	StateWriting
)

func (s CycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateAggregating:
		return "aggregating"
	case StateClassifying:
		return "classifying"
	case StateWriting:
		return "writing"
	default:
		return "unknown"
	}
}

// CycleReport is a point-in-time snapshot of the orchestrator's counters.
type CycleReport struct {
	Iterations     uint64     `json:"iterations"`
	WrittenRecords uint64     `json:"written_records"`
	FailedCycles   uint64     `json:"failed_cycles"`
	LastSuccess    time.Time  `json:"last_success"`
	LastError      string     `json:"last_error,omitempty"`
	State          CycleState `json:"-"`
}

// CycleResult describes the outcome of a single tick.
type CycleResult struct {
	ID             string
	Started        time.Time
	Duration       time.Duration
	Records        int
	Addresses      int
	LocalAddresses int
	Written        int
	Err            error
}
