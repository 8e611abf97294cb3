package runtime

import (
	"context"

	"github.com/estuary/corestream/batch"
	"github.com/estuary/corestream/message"
	"github.com/estuary/corestream/state"
	"github.com/estuary/corestream/task"
	"github.com/estuary/corestream/timer"
)

// TaskContext is the per-call handle an Operator uses to reach its state
// tables, emit output, and know its own identity — the Go analogue of
// ArrowContext in arroyo-operator/src/context.rs.
type TaskContext struct {
	Info     task.Info
	State    state.Manager
	Collector *Collector
}

// Operator is the capability contract a user implements, per spec.md §4.6.
// The runtime owns the control loop; Operator callbacks only ever run on
// the task's single goroutine, so implementations need no internal
// locking over state reachable only through TaskContext.
type Operator interface {
	// Name identifies the operator in logs and metrics.
	Name() string

	// Tables declares every state table this operator needs; TablesFor
	// adds the reserved timer.ReservedTableName table to them, and the
	// operator opens its own tables through TaskContext.State.
	Tables() []state.TableDescriptor

	OnStart(ctx context.Context, tc *TaskContext) error

	// ProcessBatch handles one input batch for single-input operators.
	// Multi-input operators should instead implement MultiInputOperator;
	// the runtime calls at most one of the two per operator.
	ProcessBatch(ctx context.Context, b *batch.RecordBatch, tc *TaskContext) error

	HandleTimer(ctx context.Context, key []byte, payload []byte, tc *TaskContext) error

	// HandleWatermark observes the task's just-advanced watermark and may
	// replace it before it is forwarded downstream (forward=false
	// suppresses forwarding entirely).
	HandleWatermark(ctx context.Context, w message.Watermark, tc *TaskContext) (out message.Watermark, forward bool, err error)

	HandleCheckpoint(ctx context.Context, b message.Barrier, tc *TaskContext) error
	HandleCommit(ctx context.Context, epoch uint32, tc *TaskContext) error
	OnClose(ctx context.Context, tc *TaskContext) error
}

// MultiInputOperator is implemented by operators with more than one
// logically distinct input (e.g. the instant-join's left/right sides),
// which need to know which input edge delivered a batch.
type MultiInputOperator interface {
	ProcessBatchIndex(ctx context.Context, inputIndex int, b *batch.RecordBatch, tc *TaskContext) error
}

// FuturePoller is implemented by operators that run a background task
// whose completion must be raced against the task's control and data
// channels (spec.md §4.6's future_to_poll). FutureToPoll is called once
// per control-loop iteration and must return promptly; a nil return means
// there is currently nothing to poll.
type FuturePoller interface {
	FutureToPoll(tc *TaskContext) <-chan any
}

// FutureResultHandler receives the value sent on the channel most
// recently returned by FutureToPoll.
type FutureResultHandler interface {
	HandleFutureResult(ctx context.Context, result any, tc *TaskContext) error
}

// TablesFor returns op's declared state tables plus the reserved timer
// table every task opens on the operator's behalf.
func TablesFor(op Operator) []state.TableDescriptor {
	return append(append([]state.TableDescriptor(nil), op.Tables()...), timer.Descriptor)
}
