// Package sourceop implements the source-operator pattern of spec.md §4.6
// and [SUPPLEMENT]: external I/O happens only on subtask 0 (sources are
// not assumed partitionable); every other subtask immediately emits
// Watermark(Idle) and then services only its control channel, grounded on
// the teacher-adjacent pack's sse.rs/websocket.rs reference connectors.
package sourceop

import (
	"context"
	"fmt"
	"io"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/estuary/corestream/batch"
	"github.com/estuary/corestream/message"
	"github.com/estuary/corestream/ops"
	"github.com/estuary/corestream/runtime"
	"github.com/estuary/corestream/state"
	"github.com/estuary/corestream/task"
)

// BadDataPolicy controls how Run reacts to a Record its Decoder cannot
// turn into a row ([SUPPLEMENT], grounded on arroyo-worker/src/formats/
// avro.rs and arroyo-connectors/src/nexmark.rs).
type BadDataPolicy int

const (
	// Drop silently discards the record and continues.
	Drop BadDataPolicy = iota
	// Fail stops the source, surfacing the decode error as fatal.
	Fail
)

// Record is one externally sourced item before decoding: an optional
// dedup ID (empty if the source has no native one) and its raw payload.
type Record struct {
	ID      string
	Payload []byte
}

// Decoder turns one Record's payload into a single-row RecordBatch
// conforming to Schema.
type Decoder func(payload []byte) (*batch.RecordBatch, error)

// Reader is the external-I/O capability a concrete source connector
// implements.
type Reader interface {
	// Open begins reading, resuming from a previously persisted progress
	// blob (nil on a fresh start).
	Open(ctx context.Context, resumeFrom []byte) error
	// Read blocks until the next record is available, ctx is cancelled,
	// or the source is exhausted (io.EOF).
	Read(ctx context.Context) (Record, error)
	// Progress returns an opaque blob capturing enough state to resume
	// reading from exactly this point.
	Progress() ([]byte, error)
	Close() error
}

// Config is everything Run needs to drive one source subtask.
type Config struct {
	Info           task.Info
	Reader         Reader
	Decoder        Decoder
	Schema         *batch.Schema
	Policy         BadDataPolicy
	MaxRows        int
	FlushInterval  time.Duration
	DedupCacheSize int // 0 disables dedup

	Collector *runtime.Collector
	State     state.Manager
	ControlRx <-chan runtime.ControlMessage
	ControlTx chan<- runtime.ControlResponse
	Metrics   *ops.TaskMetrics
}

const progressTableName = "source_progress"

// Descriptor is the global table every source reserves to hold its
// opaque restart-progress blob.
var Descriptor = state.TableDescriptor{
	Name:        progressTableName,
	Description: "opaque source restart-progress blob",
	Kind:        state.Global,
}

// Run drives one source subtask until it stops or ctx is cancelled.
// Subtask 0 performs the actual external I/O; every other subtask emits a
// single Idle watermark and then only services its control channel.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Info.TaskIndex != 0 {
		return runIdle(ctx, cfg)
	}
	return runSource(ctx, cfg)
}

func runIdle(ctx context.Context, cfg Config) error {
	if err := cfg.Collector.Broadcast(ctx, message.WatermarkMessage(message.IdleWatermark())); err != nil {
		return err
	}
	for {
		select {
		case cm := <-cfg.ControlRx:
			done, err := handleIdleControl(ctx, cfg, cm)
			if err != nil || done {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func handleIdleControl(ctx context.Context, cfg Config, cm runtime.ControlMessage) (bool, error) {
	switch cm.Kind {
	case runtime.ControlStop:
		return true, cfg.Collector.Broadcast(ctx, message.Stop())
	case runtime.ControlCheckpoint:
		if err := cfg.State.Checkpoint(ctx, cm.Barrier.Epoch, nil); err != nil {
			return false, err
		}
		if err := cfg.Collector.Broadcast(ctx, message.BarrierMessage(cm.Barrier)); err != nil {
			return false, err
		}
		if cm.Barrier.ThenStop {
			return true, cfg.Collector.Broadcast(ctx, message.Stop())
		}
	}
	return false, nil
}

func runSource(ctx context.Context, cfg Config) error {
	log := logrus.WithFields(logrus.Fields{
		"job_id":      cfg.Info.JobID,
		"operator_id": cfg.Info.OperatorID,
	})

	progressTable, err := cfg.State.Global(progressTableName)
	if err != nil {
		return fmt.Errorf("sourceop: open progress table: %w", err)
	}
	resumeFrom, _ := progressTable.Get()

	if err := cfg.Reader.Open(ctx, resumeFrom); err != nil {
		return fmt.Errorf("sourceop: open reader: %w", err)
	}
	defer cfg.Reader.Close()

	var dedup *lru.Cache[string, struct{}]
	if cfg.DedupCacheSize > 0 {
		dedup, err = lru.New[string, struct{}](cfg.DedupCacheSize)
		if err != nil {
			return fmt.Errorf("sourceop: dedup cache: %w", err)
		}
	}

	recordsCh := make(chan Record)
	readErrCh := make(chan error, 1)
	go func() {
		for {
			rec, err := cfg.Reader.Read(ctx)
			if err != nil {
				readErrCh <- err
				return
			}
			select {
			case recordsCh <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	buf := &BatchBuffer{Schema: cfg.Schema, MaxRows: cfg.MaxRows, FlushInterval: cfg.FlushInterval}
	var ticker *time.Ticker
	if cfg.FlushInterval > 0 {
		ticker = time.NewTicker(cfg.FlushInterval)
		defer ticker.Stop()
	}
	var tickerC <-chan time.Time
	if ticker != nil {
		tickerC = ticker.C
	}

	flush := func() error {
		out := buf.Flush()
		if out == nil {
			return nil
		}
		cfg.Metrics.MessagesRecv.Add(float64(out.NumRows()))
		return cfg.Collector.Collect(ctx, out)
	}

	checkpoint := func(b message.Barrier) error {
		if err := flush(); err != nil {
			return err
		}
		progress, err := cfg.Reader.Progress()
		if err != nil {
			return fmt.Errorf("sourceop: read progress: %w", err)
		}
		progressTable.Insert(progress)
		if err := cfg.State.Checkpoint(ctx, b.Epoch, nil); err != nil {
			return err
		}
		return cfg.Collector.Broadcast(ctx, message.BarrierMessage(b))
	}

	for {
		select {
		case cm := <-cfg.ControlRx:
			switch cm.Kind {
			case runtime.ControlStop:
				if cm.Mode == runtime.StopImmediate {
					return cfg.Collector.Broadcast(ctx, message.Stop())
				}
				if err := flush(); err != nil {
					return err
				}
				return cfg.Collector.Broadcast(ctx, message.Stop())
			case runtime.ControlCheckpoint:
				if err := checkpoint(cm.Barrier); err != nil {
					return err
				}
				if cm.Barrier.ThenStop {
					return cfg.Collector.Broadcast(ctx, message.Stop())
				}
			}

		case rec := <-recordsCh:
			if dedup != nil && rec.ID != "" {
				if _, seen := dedup.Get(rec.ID); seen {
					continue
				}
				dedup.Add(rec.ID, struct{}{})
			}
			row, err := cfg.Decoder(rec.Payload)
			if err != nil {
				if cfg.Policy == Fail {
					return fmt.Errorf("sourceop: decode record %q: %w", rec.ID, err)
				}
				log.WithError(err).Warn("dropping undecodable record")
				continue
			}
			buf.Add(row)
			if buf.Ready() {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-tickerC:
			if err := flush(); err != nil {
				return err
			}

		case err := <-readErrCh:
			if err == io.EOF {
				if ferr := flush(); ferr != nil {
					return ferr
				}
				return cfg.Collector.Broadcast(ctx, message.EndOfData())
			}
			return fmt.Errorf("sourceop: reader: %w", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
