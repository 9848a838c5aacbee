package ffwd

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer measures the wall-clock duration of a single scoped operation in
// nanoseconds. It holds at most one completed measurement at a time; starting
// a new measurement cycle overwrites the previous result. A timer that has
// never completed a measurement reports a null value. It is safe for
// concurrent use.
type Timer struct {
	name       string
	key        string
	attributes map[string]string
	tags       []string
	clock      clock.Clock

	mutex   sync.Mutex
	start   time.Time
	running bool
	value   *float64
}

// TimerOpts formalizes optional timer parameters.
type TimerOpts struct {
	// Attributes are additional attribute entries serialized alongside the
	// mandatory what and unit attributes on every flushed record.
	Attributes map[string]string
	// Tags are free-form strings serialized verbatim on every flushed record.
	Tags []string
	// Clock overrides the time source used to bracket measurements.
	// Defaults to the system clock.
	Clock clock.Clock
}

// NewTimer creates a timer flushed under the given wire key and named by the
// record's what attribute.
func NewTimer(name string, key string, opts TimerOpts) *Timer {
	timerClock := opts.Clock
	if timerClock == nil {
		timerClock = clock.New()
	}

	return &Timer{
		name:       name,
		key:        key,
		attributes: copyAttributes(opts.Attributes),
		tags:       normalizeTags(opts.Tags),
		clock:      timerClock,
	}
}

// Start begins a measurement cycle. Starting while a cycle is already open
// restarts it from the current instant.
func (t *Timer) Start() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.start = t.clock.Now()
	t.running = true
}

// Stop completes the measurement cycle opened by Start and records the
// elapsed duration, replacing any previous measurement. Stopping a timer that
// is not running is a no-op.
func (t *Timer) Stop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.running {
		return
	}

	elapsed := float64(t.clock.Now().Sub(t.start))
	t.value = &elapsed
	t.running = false
}

// Time measures the execution duration of fn. The measurement is recorded
// even when fn panics.
func (t *Timer) Time(fn func()) {
	t.Start()
	defer t.Stop()

	fn()
}

// Value returns the most recent completed measurement in nanoseconds and
// whether any measurement has completed.
func (t *Timer) Value() (float64, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.value == nil {
		return 0, false
	}

	return *t.value, true
}

// Flush serializes the timer's most recent measurement into a record and
// hands it to the sink. The record always declares a nanosecond unit
// attribute; its value is null when no measurement has completed.
func (t *Timer) Flush(sink Sink) error {
	var value interface{}
	if nanoseconds, ok := t.Value(); ok {
		value = nanoseconds
	}

	record := &Record{
		Key:        t.key,
		Type:       RecordType,
		Value:      value,
		Attributes: mergeAttributes(t.name, map[string]string{"unit": "ns"}, t.attributes),
		Tags:       normalizeTags(t.tags),
	}

	return sink.Send(record)
}
