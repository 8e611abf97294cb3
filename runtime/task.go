package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/estuary/corestream/message"
	"github.com/estuary/corestream/ops"
	"github.com/estuary/corestream/state"
	"github.com/estuary/corestream/task"
	"github.com/estuary/corestream/timer"
)

// Task drives one operator subtask's control loop: a three-way race
// between its control channel, its input multiplexer, and any background
// future the operator is polling, exactly as described by spec.md §4.6.
// All Operator callbacks run on the single goroutine that calls Run.
type Task struct {
	Info      task.Info
	Operator  Operator
	Inputs    []<-chan message.Envelope
	Collector *Collector
	State     state.Manager
	Timers    *timer.Service
	Metrics   *ops.TaskMetrics
	ControlRx <-chan ControlMessage
	ControlTx chan<- ControlResponse

	watermarks  *WatermarkHolder
	checkpoints *CheckpointCounter
	mux         *Multiplexer
	tc          *TaskContext
	inputClosed []bool
	closeKind   message.Kind
}

// NewTimerService opens the reserved timer table on mgr and wraps it in a
// timer.Service, for callers constructing a Task.
func NewTimerService(mgr state.Manager) (*timer.Service, error) {
	table, err := mgr.TimeKeyedTable(timer.ReservedTableName)
	if err != nil {
		return nil, fmt.Errorf("runtime: open timer table: %w", err)
	}
	return timer.NewService(table), nil
}

// NewTask constructs a Task ready to Run. n, the edge count used to size
// the watermark holder and checkpoint counter, is max(1, len(inputs)) so
// that a zero-input source task still has a well-formed (degenerate)
// alignment state for the barriers it originates itself.
func NewTask(info task.Info, op Operator, inputs []<-chan message.Envelope, collector *Collector, mgr state.Manager, timers *timer.Service, metrics *ops.TaskMetrics, controlRx <-chan ControlMessage, controlTx chan<- ControlResponse) *Task {
	n := len(inputs)
	if n == 0 {
		n = 1
	}
	return &Task{
		Info:        info,
		Operator:    op,
		Inputs:      inputs,
		Collector:   collector,
		State:       mgr,
		Timers:      timers,
		Metrics:     metrics,
		ControlRx:   controlRx,
		ControlTx:   controlTx,
		watermarks:  NewWatermarkHolder(n),
		checkpoints: NewCheckpointCounter(n),
		inputClosed: make([]bool, len(inputs)),
		closeKind:   message.KindEndOfData,
	}
}

// Run blocks until the task finishes (graceful stop, immediate stop, or a
// fatal error) or ctx is cancelled.
func (t *Task) Run(ctx context.Context) (err error) {
	defer func() {
		var ue *UserError
		if t.ControlTx == nil || !errors.As(err, &ue) {
			return
		}
		report := &ErrorReport{OperatorID: t.Info.OperatorID, TaskIndex: t.Info.TaskIndex, Message: ue.Operator, Details: ue.Cause.Error()}
		select {
		case t.ControlTx <- ControlResponse{Error: report}:
		default:
		}
	}()

	t.mux = NewMultiplexer(ctx, t.Inputs)
	t.tc = &TaskContext{Info: t.Info, State: t.State, Collector: t.Collector}

	if err := t.Operator.OnStart(ctx, t.tc); err != nil {
		return &UserError{Operator: t.Operator.Name(), Cause: err}
	}

	for {
		// Control messages take priority over data: drain any that are
		// already available before blocking on the full race below.
		select {
		case cm := <-t.ControlRx:
			if done, err := t.handleControl(ctx, cm); err != nil || done {
				return err
			}
			continue
		default:
		}

		var futureCh <-chan any
		if fp, ok := t.Operator.(FuturePoller); ok {
			futureCh = fp.FutureToPoll(t.tc)
		}

		select {
		case cm := <-t.ControlRx:
			if done, err := t.handleControl(ctx, cm); err != nil || done {
				return err
			}

		case ie := <-t.mux.Out():
			done, err := t.handleMessage(ctx, ie)
			if err != nil || done {
				return err
			}

		case err := <-t.mux.Err():
			return &ProtocolViolation{Cause: err}

		case result := <-futureCh:
			if fh, ok := t.Operator.(FutureResultHandler); ok {
				if err := fh.HandleFutureResult(ctx, result, t.tc); err != nil {
					return &UserError{Operator: t.Operator.Name(), Cause: err}
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *Task) handleControl(ctx context.Context, cm ControlMessage) (done bool, err error) {
	switch cm.Kind {
	case ControlCheckpoint:
		// Only a source task (no upstream data edges) ever takes a
		// checkpoint command directly; every other task receives its
		// barrier in-band, propagated through the data multiplexer.
		if len(t.Inputs) == 0 {
			return t.onBarrier(ctx, 0, cm.Barrier)
		}
	case ControlStop:
		if cm.Mode == StopImmediate {
			t.closeKind = message.KindStop
			return t.finish(ctx)
		}
		// Graceful stop is driven by the in-band Stop/EndOfData envelopes
		// that eventually arrive on every input edge; there is nothing
		// further to do here.
	case ControlCommit:
		if e := t.Operator.HandleCommit(ctx, cm.Epoch, t.tc); e != nil {
			return false, &UserError{Operator: t.Operator.Name(), Cause: e}
		}
	case ControlLoadCompacted, ControlNoOp:
	}
	return false, nil
}

func (t *Task) handleMessage(ctx context.Context, ie Indexed) (done bool, err error) {
	t.Metrics.MessagesRecv.Inc()

	switch ie.Env.Kind {
	case message.KindRecord:
		if ie.Env.Batch != nil {
			t.Metrics.BytesRecv.Add(float64(ie.Env.Batch.ApproxByteSize()))
		}
		if mi, ok := t.Operator.(MultiInputOperator); ok {
			err = mi.ProcessBatchIndex(ctx, ie.Index, ie.Env.Batch, t.tc)
		} else {
			err = t.Operator.ProcessBatch(ctx, ie.Env.Batch, t.tc)
		}
		if err != nil {
			return false, &UserError{Operator: t.Operator.Name(), Cause: err}
		}
		return false, nil

	case message.KindWatermark:
		return t.onWatermark(ctx, ie.Index, ie.Env.Watermark)

	case message.KindBarrier:
		return t.onBarrier(ctx, ie.Index, ie.Env.Barrier)

	case message.KindStop, message.KindEndOfData:
		return t.onEdgeClosed(ctx, ie.Index, ie.Env.Kind)

	default:
		return false, nil
	}
}

func (t *Task) onWatermark(ctx context.Context, idx int, w message.Watermark) (bool, error) {
	combined, advanced := t.watermarks.Set(idx, w)
	if !advanced {
		return false, nil
	}

	if combined.Kind == message.EventTime {
		if t.Timers != nil {
			for _, due := range t.Timers.DrainDue(combined.Time) {
				if err := t.Operator.HandleTimer(ctx, due.Key, due.Payload, t.tc); err != nil {
					return false, &UserError{Operator: t.Operator.Name(), Cause: err}
				}
			}
		}
		t.State.HandleWatermark(combined.Time)
	}

	out, forward, err := t.Operator.HandleWatermark(ctx, combined, t.tc)
	if err != nil {
		return false, &UserError{Operator: t.Operator.Name(), Cause: err}
	}
	if !forward {
		return false, nil
	}
	return false, t.Collector.Broadcast(ctx, message.WatermarkMessage(out))
}

func (t *Task) onBarrier(ctx context.Context, idx int, b message.Barrier) (bool, error) {
	first, allClear, err := t.checkpoints.Mark(idx, b.Epoch)
	if err != nil {
		return false, &ProtocolViolation{Cause: err}
	}
	if first {
		t.emitEvent(b.Epoch, StartedAlignment)
	}
	if !allClear {
		if len(t.Inputs) > 1 {
			t.mux.Park(idx)
		}
		return false, nil
	}

	t.emitEvent(b.Epoch, StartedCheckpointing)
	if err := t.Operator.HandleCheckpoint(ctx, b, t.tc); err != nil {
		return false, &UserError{Operator: t.Operator.Name(), Cause: err}
	}
	t.emitEvent(b.Epoch, FinishedOperatorSetup)

	var wp *time.Time
	if w, ok := t.watermarks.Watermark(); ok && w.Kind == message.EventTime {
		tt := w.Time
		wp = &tt
	}
	if err := t.State.Checkpoint(ctx, b.Epoch, wp); err != nil {
		return false, fmt.Errorf("runtime: checkpoint epoch %d: %w", b.Epoch, err)
	}
	t.emitEvent(b.Epoch, FinishedSync)

	for i := range t.Inputs {
		t.mux.Unpark(i)
	}

	if err := t.Collector.Broadcast(ctx, message.BarrierMessage(b)); err != nil {
		return false, err
	}
	if b.ThenStop {
		t.closeKind = message.KindStop
		return t.finish(ctx)
	}
	return false, nil
}

func (t *Task) onEdgeClosed(ctx context.Context, idx int, kind message.Kind) (bool, error) {
	if idx < len(t.inputClosed) {
		t.inputClosed[idx] = true
	}
	// Stop is sticky across edges: if any input signalled an abrupt Stop,
	// the task's own outcome is Stop even if other edges drained via
	// EndOfData first.
	if kind == message.KindStop {
		t.closeKind = message.KindStop
	}
	for _, closed := range t.inputClosed {
		if !closed {
			return false, nil
		}
	}
	return t.finish(ctx)
}

// finish runs the operator's close hook, broadcasts the task's terminal
// signal downstream (Stop for graceful/immediate drain, EndOfData for
// normal completion — spec.md §4.6), and releases state.
func (t *Task) finish(ctx context.Context) (bool, error) {
	if err := t.Operator.OnClose(ctx, t.tc); err != nil {
		return true, &UserError{Operator: t.Operator.Name(), Cause: err}
	}
	var term message.Envelope
	if t.closeKind == message.KindStop {
		term = message.Stop()
	} else {
		term = message.EndOfData()
	}
	if err := t.Collector.Broadcast(ctx, term); err != nil {
		return true, err
	}
	if err := t.State.Close(); err != nil {
		return true, fmt.Errorf("runtime: state close: %w", err)
	}
	return true, nil
}

func (t *Task) emitEvent(epoch uint32, eventType CheckpointEventType) {
	if t.ControlTx == nil {
		return
	}
	ev := &CheckpointEvent{
		Epoch:        epoch,
		OperatorID:   t.Info.OperatorID,
		SubtaskIndex: t.Info.TaskIndex,
		Time:         time.Now(),
		EventType:    eventType,
	}
	select {
	case t.ControlTx <- ControlResponse{Checkpoint: ev}:
	default:
	}
}
