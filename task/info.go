// Package task defines Info, the small immutable identity record
// shared by every task-owned component (state manager, metrics, runtime
// loop) for the life of the task (spec.md §3).
package task

// Info identifies one parallel subtask of one operator within one job.
// Immutable for the life of the task.
type Info struct {
	JobID        string
	OperatorID   string
	OperatorName string
	TaskIndex    int
	Parallelism  int
}
