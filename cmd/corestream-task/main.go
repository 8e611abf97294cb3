// Command corestream-task is the per-task runner binary: it parses this
// subtask's identity and wiring from flags/environment, opens its durable
// state backend, and serves Prometheus metrics — grounded on the
// teacher's go/consumer/app.go config/runconsumer.BaseConfig pattern
// (a flat struct of long/description/env-tagged fields parsed by
// jessevdk/go-flags) and go/consumer/config.go's banner-then-serve
// main(). Assembling the dataflow graph and handing this binary its
// Operator is an external coordinator's concern (spec.md §1 Non-goals);
// this binary builds the per-task scaffolding the coordinator's
// OperatorConfig plugs into.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/estuary/corestream/ops"
	"github.com/estuary/corestream/state/sqlitestore"
	"github.com/estuary/corestream/task"
)

// config mirrors the teacher's config struct: a flat set of
// long/description/env-tagged fields, parsed once at process start.
type config struct {
	JobID        string `long:"job-id" description:"job this task belongs to" required:"true" env:"CORESTREAM_JOB_ID"`
	OperatorID   string `long:"operator-id" description:"operator this task runs" required:"true" env:"CORESTREAM_OPERATOR_ID"`
	OperatorName string `long:"operator-name" description:"human-readable operator name" env:"CORESTREAM_OPERATOR_NAME"`
	TaskIndex    int    `long:"task-index" description:"this subtask's index within its operator" default:"0" env:"CORESTREAM_TASK_INDEX"`
	Parallelism  int    `long:"parallelism" description:"total subtask count for this operator" default:"1" env:"CORESTREAM_PARALLELISM"`

	StatePath  string `long:"state-path" description:"path to this task's sqlite state database" default:"corestream-state.db" env:"CORESTREAM_STATE_PATH"`
	ListenAddr string `long:"listen-addr" description:"address to serve /metrics on" default:":9090" env:"CORESTREAM_LISTEN_ADDR"`
	Verbose    bool   `long:"verbose" description:"enable debug logging" env:"CORESTREAM_VERBOSE"`
}

func main() {
	var cfg config
	if _, err := flags.Parse(&cfg); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	info := task.Info{
		JobID:        cfg.JobID,
		OperatorID:   cfg.OperatorID,
		OperatorName: cfg.OperatorName,
		TaskIndex:    cfg.TaskIndex,
		Parallelism:  cfg.Parallelism,
	}
	log := logrus.WithFields(logrus.Fields{
		"job_id":      info.JobID,
		"operator_id": info.OperatorID,
		"task_index":  info.TaskIndex,
	})

	printBanner(info)

	backend, err := sqlitestore.Open(cfg.StatePath)
	if err != nil {
		log.WithError(err).Fatal("opening state backend")
	}
	defer backend.Close()

	metrics := ops.NewTaskMetrics(info)
	// Not wired into a runtime.Task here: this binary only owns the
	// per-process scaffolding (state backend, /metrics server); handing
	// metrics, the input channels, and an Operator to runtime.NewTask is
	// the coordinator's job of assembling the dataflow graph (spec.md §1
	// Non-goals). The Prometheus registry still serves metrics's counters
	// once a caller wires them into a Task built from this process.
	_ = metrics

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		srv.Close()
	}()

	log.WithField("addr", cfg.ListenAddr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("metrics server exited")
	}
}

func printBanner(info task.Info) {
	title := color.New(color.FgCyan, color.Bold)
	title.Println("corestream-task")
	fmt.Printf("  job=%s operator=%s (%s) subtask=%d/%d\n",
		info.JobID, info.OperatorID, info.OperatorName, info.TaskIndex, info.Parallelism)
}
