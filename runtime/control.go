package runtime

import (
	"fmt"
	"time"

	"github.com/estuary/corestream/message"
)

// StopMode distinguishes a graceful drain from an immediate abort, per
// spec.md §4.6.
type StopMode int

const (
	// StopGraceful flushes in-flight data, then broadcasts Stop.
	StopGraceful StopMode = iota
	// StopImmediate stops without draining.
	StopImmediate
)

func (m StopMode) String() string {
	if m == StopImmediate {
		return "Immediate"
	}
	return "Graceful"
}

// ControlKind tags the coordinator -> task control-channel union.
type ControlKind int

const (
	ControlCheckpoint ControlKind = iota
	ControlStop
	ControlCommit
	ControlLoadCompacted
	ControlNoOp
)

// ControlMessage is one message a coordinator sends to a task's control
// channel, out of band from the data multiplexer (spec.md §6).
type ControlMessage struct {
	Kind ControlKind

	Barrier   message.Barrier // ControlCheckpoint
	Mode      StopMode        // ControlStop
	Epoch     uint32          // ControlCommit
	Compacted []byte          // ControlLoadCompacted
}

// CheckpointEventType enumerates the phases a task reports back to the
// coordinator while running a checkpoint.
type CheckpointEventType int

const (
	StartedAlignment CheckpointEventType = iota
	StartedCheckpointing
	FinishedOperatorSetup
	FinishedSync
)

func (t CheckpointEventType) String() string {
	switch t {
	case StartedAlignment:
		return "StartedAlignment"
	case StartedCheckpointing:
		return "StartedCheckpointing"
	case FinishedOperatorSetup:
		return "FinishedOperatorSetup"
	case FinishedSync:
		return "FinishedSync"
	default:
		return fmt.Sprintf("CheckpointEventType(%d)", int(t))
	}
}

// CheckpointEvent reports one phase transition of an in-progress
// checkpoint back to the coordinator (spec.md §6).
type CheckpointEvent struct {
	Epoch        uint32
	OperatorID   string
	SubtaskIndex int
	Time         time.Time
	EventType    CheckpointEventType
}

// ErrorReport carries an operator error back to the coordinator.
type ErrorReport struct {
	OperatorID string
	TaskIndex  int
	Message    string
	Details    string
}

// ControlResponse is one message a task emits back on its control-response
// channel.
type ControlResponse struct {
	Checkpoint *CheckpointEvent
	Error      *ErrorReport
}
