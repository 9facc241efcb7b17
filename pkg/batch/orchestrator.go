// Package batch drives concurrent lookups over an ordered identifier list.
// Identifiers already in the negative ledger are filtered up front; the
// rest are processed in strictly sequential batches with overlapping
// in-flight requests inside each batch.
package batch

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/just-h/yoinker-detector/pkg/cache"
	"github.com/just-h/yoinker-detector/pkg/sink"
)

// Prometheus metrics for batch processing.
var (
	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yd_lookups_total",
		Help: "Total completed lookups by outcome",
	}, []string{"outcome"})

	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yd_batches_total",
		Help: "Total batches processed",
	})

	taskWaitTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yd_task_wait_timeouts_total",
		Help: "Total lookup tasks that exceeded the per-task wait timeout",
	})
)

// Policy selects how the concurrency setting bounds in-flight lookups.
type Policy int

const (
	// PolicyBatchSlack sizes batches at twice the concurrency setting so
	// request issuance and completion overlap. Every task in a batch is
	// launched together, so peak in-flight requests can reach the full
	// batch size.
	PolicyBatchSlack Policy = iota

	// PolicyStrictCap sizes batches at exactly the concurrency setting,
	// so in-flight requests never exceed it.
	PolicyStrictCap
)

// Config holds orchestrator configuration.
type Config struct {
	// Concurrency is the intended parallel lookup count; Policy decides
	// whether it is a strict ceiling or a batch sizing hint.
	Concurrency int

	// Policy is the concurrency policy. Zero value is PolicyBatchSlack.
	Policy Policy

	// TaskWait is how long a single task is awaited before it is counted
	// unresolved. Distinct from the transport timeout inside the client;
	// a task that overruns it keeps running and may complete its durable
	// side effects afterward.
	TaskWait time.Duration
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		TaskWait:    5 * time.Second,
	}
}

// Lookuper is the single-identifier lookup the orchestrator fans out.
type Lookuper interface {
	Lookup(ctx context.Context, id string) cache.Result
}

// Totals aggregates a run's outcome counters.
type Totals struct {
	Skipped    int // ledgered before batching
	Completed  int
	Found      int
	NotFound   int
	Unresolved int
}

// Orchestrator partitions identifiers into batches and drives the
// lookups within each.
type Orchestrator struct {
	client Lookuper
	sink   *sink.Sink
	ledger *cache.Ledger
	config Config
}

// New creates an orchestrator. Zero config fields fall back to defaults.
// A nil ledger disables the up-front skip filter (volatile runs).
func New(client Lookuper, resultSink *sink.Sink, ledger *cache.Ledger, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.TaskWait <= 0 {
		cfg.TaskWait = DefaultConfig().TaskWait
	}
	return &Orchestrator{
		client: client,
		sink:   resultSink,
		ledger: ledger,
		config: cfg,
	}
}

// Run processes the identifiers in input order and returns the
// aggregated totals. Individual lookup failures never abort the run.
func (o *Orchestrator) Run(ctx context.Context, ids []string) Totals {
	start := time.Now()
	var totals Totals

	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		if o.ledger != nil && o.ledger.Contains(id) {
			totals.Skipped++
			continue
		}
		pending = append(pending, id)
	}
	if totals.Skipped > 0 {
		log.Info().
			Int("skipped", totals.Skipped).
			Msg("Skipped identifiers already in the negative ledger")
	}
	if len(pending) == 0 {
		log.Info().Msg("Nothing to look up")
		return totals
	}

	batchSize := 2 * o.config.Concurrency
	if o.config.Policy == PolicyStrictCap {
		batchSize = o.config.Concurrency
	}
	batchCount := (len(pending) + batchSize - 1) / batchSize

	log.Info().
		Int("identifiers", len(pending)).
		Int("batches", batchCount).
		Int("batch_size", batchSize).
		Msg("Starting lookups")

	for i := 0; i < len(pending); i += batchSize {
		end := i + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]

		log.Info().
			Int("batch", i/batchSize+1).
			Int("batches", batchCount).
			Int("size", len(batch)).
			Msg("Processing batch")

		o.runBatch(ctx, batch, &totals, len(pending))
		batchesTotal.Inc()
	}

	log.Info().
		Int("completed", totals.Completed).
		Int("found", totals.Found).
		Int("not_found", totals.NotFound).
		Int("unresolved", totals.Unresolved).
		Dur("duration", time.Since(start)).
		Msg("Run complete")

	return totals
}

// runBatch launches one task per identifier and awaits each with the
// per-task wait timeout. Tasks persist their own results so that a task
// overrunning the wait still lands its side effects.
func (o *Orchestrator) runBatch(ctx context.Context, batch []string, totals *Totals, total int) {
	type task struct {
		id   string
		done chan cache.Result
	}

	tasks := make([]task, 0, len(batch))
	for _, id := range batch {
		t := task{id: id, done: make(chan cache.Result, 1)}
		tasks = append(tasks, t)

		go func(id string, done chan<- cache.Result) {
			res := o.client.Lookup(ctx, id)
			if err := o.sink.Persist(id, res); err != nil {
				log.Warn().Err(err).Str("user_id", id).Msg("Persist failed")
			}
			done <- res
		}(t.id, t.done)
	}

	timer := time.NewTimer(o.config.TaskWait)
	defer timer.Stop()

	for _, t := range tasks {
		timer.Reset(o.config.TaskWait)

		var res cache.Result
		select {
		case res = <-t.done:
		case <-timer.C:
			// Bookkeeping only: the task is not cancelled and may still
			// persist its result later.
			taskWaitTimeoutsTotal.Inc()
			res = cache.Result{Outcome: cache.OutcomeUnresolved}
			log.Warn().
				Str("user_id", t.id).
				Dur("wait", o.config.TaskWait).
				Msg("Task wait timeout")
		}

		totals.Completed++
		lookupsTotal.WithLabelValues(string(res.Outcome)).Inc()

		switch res.Outcome {
		case cache.OutcomeFound:
			totals.Found++
			log.Info().
				Str("user_id", t.id).
				Str("user_name", res.Record.UserName).
				Str("reason", res.Record.Reason).
				Int("completed", totals.Completed).
				Int("total", total).
				Msg("FOUND")
		case cache.OutcomeNotFound:
			totals.NotFound++
			log.Info().
				Str("user_id", t.id).
				Int("completed", totals.Completed).
				Int("total", total).
				Msg("Not found")
		default:
			totals.Unresolved++
		}
	}
}
