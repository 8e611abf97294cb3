package runtime

import (
	"context"

	"github.com/minio/highwayhash"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/estuary/corestream/batch"
	"github.com/estuary/corestream/message"
	"github.com/estuary/corestream/ops"
)

// hashKey is a fixed 32-byte key used to give ServerForHash routing a
// stable hash of partition-key bytes across restarts and across tasks —
// the Go analogue of the teacher's fixed AES-CTR key in
// go/labels/generateStableWeights, traded for highwayhash since nothing in
// this domain needs the AES construction's specific properties.
var hashKey = [32]byte{
	0x63, 0x6f, 0x72, 0x65, 0x73, 0x74, 0x72, 0x65,
	0x61, 0x6d, 0x2d, 0x72, 0x6f, 0x75, 0x74, 0x69,
	0x6e, 0x67, 0x2d, 0x68, 0x61, 0x73, 0x68, 0x2d,
	0x6b, 0x65, 0x79, 0x2d, 0x76, 0x31, 0x00, 0x00,
}

// ServerForHash maps hash h to a partition in [0, n), per spec.md §4.5:
// server_for_hash(h, n) = min(n-1, h / (MaxUint64 / n)).
func ServerForHash(h uint64, n int) int {
	if n <= 0 {
		panic("runtime: ServerForHash requires n >= 1")
	}
	rangeSize := ^uint64(0) / uint64(n)
	idx := int(h / rangeSize)
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

func hashKeyBytes(b []byte) uint64 {
	h, err := highwayhash.New64(hashKey[:])
	if err != nil {
		panic(err) // hashKey is a fixed 32 bytes; New64 cannot fail
	}
	_, _ = h.Write(b)
	return h.Sum64()
}

// DownstreamOperator is one successor operator's set of partitioned input
// channels, as seen by this task's Collector.
type DownstreamOperator struct {
	Name       string
	Partitions []chan<- message.Envelope
}

// Collector routes task output to every downstream operator: keyed
// batches by ServerForHash on the key columns, unkeyed batches by
// round-robin, and control messages (watermark/barrier/stop/end-of-data)
// broadcast to every partition of every downstream operator. It mirrors
// the teacher's ArrowCollector::collect / broadcast split in
// arroyo-operator/src/context.rs.
type Collector struct {
	downstream []DownstreamOperator
	metrics    *ops.TaskMetrics
	gauges     map[gaugeKey]gaugePair
	rrCounter  int
}

type gaugeKey struct {
	op  int
	idx int
}

type gaugePair struct {
	size, rem prometheus.Gauge
}

// NewCollector constructs a Collector over the given downstream operators.
func NewCollector(downstream []DownstreamOperator, metrics *ops.TaskMetrics) *Collector {
	c := &Collector{downstream: downstream, metrics: metrics, gauges: make(map[gaugeKey]gaugePair)}
	for oi, d := range downstream {
		for pi := range d.Partitions {
			size, rem := metrics.QueueGauges(d.Name, pi)
			c.gauges[gaugeKey{oi, pi}] = gaugePair{size, rem}
		}
	}
	return c
}

// Collect routes one record batch to every downstream operator,
// partitioning by key hash when the batch's schema is keyed and by
// round-robin otherwise.
func (c *Collector) Collect(ctx context.Context, b *batch.RecordBatch) error {
	for oi, d := range c.downstream {
		if len(d.Partitions) == 0 {
			continue
		}
		idx := c.partitionFor(b, len(d.Partitions))
		if err := c.dispatch(ctx, oi, d, idx, message.Record(b)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) partitionFor(b *batch.RecordBatch, n int) int {
	if b.Schema.IsKeyed() && b.NumRows() > 0 {
		return ServerForHash(hashKeyBytes(b.KeyBytes(0)), n)
	}
	c.rrCounter++
	return c.rrCounter % n
}

// Broadcast sends a control envelope (watermark, barrier, stop, or
// end-of-data) to every partition of every downstream operator.
func (c *Collector) Broadcast(ctx context.Context, env message.Envelope) error {
	for oi, d := range c.downstream {
		for pi := range d.Partitions {
			if err := c.dispatch(ctx, oi, d, pi, env); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Collector) dispatch(ctx context.Context, oi int, d DownstreamOperator, idx int, env message.Envelope) error {
	ch := d.Partitions[idx]
	select {
	case ch <- env:
	case <-ctx.Done():
		return ctx.Err()
	}

	if env.Kind == message.KindRecord {
		c.metrics.MessagesSent.Inc()
		if env.Batch != nil {
			c.metrics.BytesSent.Add(float64(env.Batch.ApproxByteSize()))
		}
	}
	if g, ok := c.gauges[gaugeKey{oi, idx}]; ok {
		g.size.Set(float64(cap(ch)))
		g.rem.Set(float64(cap(ch) - len(ch)))
	}
	return nil
}
