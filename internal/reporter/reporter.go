package reporter

import (
	"context"
	"runtime"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"ffwdrelay/ffwd"
	"ffwdrelay/internal/log"
)

// Reporter periodically samples Go runtime statistics into a metric relay and
// drives the relay's flush cadence.
type Reporter struct {
	relay  *ffwd.MetricRelay
	logger log.Logger
	opts   ReporterOpts

	lastNumGC uint32
}

// ReporterOpts formalizes reporter configuration options.
type ReporterOpts struct {
	// Interval is the duration between samples; each sample ends with a full
	// relay flush.
	Interval time.Duration
	// Clock overrides the ticker time source.
	Clock clock.Clock
}

// NewReporter creates a reporter that samples into the given relay.
func NewReporter(relay *ffwd.MetricRelay, logger log.Logger, opts ReporterOpts) *Reporter {
	// Sane option defaults
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	return &Reporter{relay: relay, logger: logger, opts: opts}
}

// Run samples and flushes on every interval tick until the context is
// canceled. Emission and flush failures are logged and do not stop the loop;
// counters keep their accumulated values for the next attempt.
func (r *Reporter) Run(ctx context.Context) {
	ticker := r.opts.Clock.Ticker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sample(); err != nil {
				r.logger.Error("reporter: runtime stats emission failed: err=%v", err)
			}

			if err := r.relay.Flush(); err != nil {
				r.logger.Error("reporter: flush failed: err=%v", err)
				continue
			}

			r.logger.Debug("reporter: flushed runtime stats")
		}
	}
}

// Sample takes one point-in-time reading of the runtime. Gauges are emitted
// immediately while cumulative counters are advanced for the next flush; the
// sampling duration itself feeds a timer metric.
func (r *Reporter) Sample() error {
	var err error

	timer := r.relay.Timer("reporter.sample", ffwd.TimerOpts{})
	timer.Time(func() {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		err = multierr.Combine(
			r.relay.Emit("runtime.goroutines", float64(runtime.NumGoroutine()), nil, nil),
			r.relay.Emit("runtime.heap_alloc_bytes", float64(stats.HeapAlloc), nil, nil),
			r.relay.Emit("runtime.heap_objects", float64(stats.HeapObjects), nil, nil),
		)

		if delta := stats.NumGC - r.lastNumGC; delta > 0 {
			r.relay.IncrBy("runtime.gc_cycles", int64(delta))
			r.lastNumGC = stats.NumGC
		}

		r.relay.Incr("reporter.samples")
	})

	return err
}
