// Package ops holds the per-task metrics surface (spec.md §6), grounded on
// the teacher's go/network/metrics.go promauto.NewCounterVec/NewGaugeVec
// idiom.
package ops

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/estuary/corestream/task"
)

var (
	messagesRecvTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corestream_task_messages_recv_total",
		Help: "count of messages received by this task",
	}, []string{"job_id", "operator_id", "task_index"})

	messagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corestream_task_messages_sent_total",
		Help: "count of messages sent by this task",
	}, []string{"job_id", "operator_id", "task_index"})

	bytesRecvTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corestream_task_bytes_recv_total",
		Help: "count of bytes received by this task",
	}, []string{"job_id", "operator_id", "task_index"})

	bytesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corestream_task_bytes_sent_total",
		Help: "count of bytes sent by this task",
	}, []string{"job_id", "operator_id", "task_index"})

	txQueueSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "corestream_task_tx_queue_size",
		Help: "capacity of a downstream edge's tx queue",
	}, []string{"job_id", "operator_id", "task_index", "next_node", "next_node_idx"})

	txQueueRem = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "corestream_task_tx_queue_rem",
		Help: "remaining space in a downstream edge's tx queue",
	}, []string{"job_id", "operator_id", "task_index", "next_node", "next_node_idx"})
)

// TaskMetrics is the bundle of counters/gauges for one task, pre-bound to
// its label values.
type TaskMetrics struct {
	MessagesRecv prometheus.Counter
	MessagesSent prometheus.Counter
	BytesRecv    prometheus.Counter
	BytesSent    prometheus.Counter

	info task.Info
}

// NewTaskMetrics binds the package-level metric vectors to one task's
// label values.
func NewTaskMetrics(info task.Info) *TaskMetrics {
	labels := prometheus.Labels{
		"job_id":      info.JobID,
		"operator_id": info.OperatorID,
		"task_index":  strconv.Itoa(info.TaskIndex),
	}
	return &TaskMetrics{
		MessagesRecv: messagesRecvTotal.With(labels),
		MessagesSent: messagesSentTotal.With(labels),
		BytesRecv:    bytesRecvTotal.With(labels),
		BytesSent:    bytesSentTotal.With(labels),
		info:         info,
	}
}

// QueueGauges returns the tx_queue_size/tx_queue_rem gauge pair for one
// downstream edge, labeled per spec.md §6.
func (m *TaskMetrics) QueueGauges(nextNode string, nextNodeIdx int) (size, rem prometheus.Gauge) {
	labels := prometheus.Labels{
		"job_id":        m.info.JobID,
		"operator_id":   m.info.OperatorID,
		"task_index":    strconv.Itoa(m.info.TaskIndex),
		"next_node":     nextNode,
		"next_node_idx": strconv.Itoa(nextNodeIdx),
	}
	return txQueueSize.With(labels), txQueueRem.With(labels)
}
