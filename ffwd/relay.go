package ffwd

import (
	"sync"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultHost is the address on which a local FFWD daemon is expected to
	// listen.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the FFWD daemon's standard JSON-over-UDP input port.
	DefaultPort = 19000
)

// MetricRelay owns a registry of named metrics and the transport used to emit
// them. Metrics are created lazily on first use and live for the lifetime of
// the relay; each flush serializes every registered metric exactly once. It
// is safe for concurrent use.
type MetricRelay struct {
	key               string
	defaultAttributes map[string]string
	sink              Sink
	ownedSink         *UDPSink
	clock             clock.Clock

	mutex    sync.Mutex
	counters map[string]*Counter
	timers   map[string]*Timer
	custom   map[string]Metric
}

// MetricRelayOpts formalizes optional relay parameters.
type MetricRelayOpts struct {
	// Host is the FFWD daemon host. Defaults to DefaultHost.
	Host string
	// Port is the FFWD daemon port. Defaults to DefaultPort.
	Port int
	// DefaultAttributes are attached to every metric the relay creates.
	// Metric-specific and call-specific attributes win on conflict.
	DefaultAttributes map[string]string
	// Sink overrides the JSON-over-UDP transport entirely. When set, no
	// socket is opened and Host and Port are ignored.
	Sink Sink
	// Clock overrides the time source handed to timers the relay creates.
	Clock clock.Clock
}

// NewMetricRelay creates a relay that emits records under the given wire key.
// Unless a sink override is supplied, the daemon address is resolved here and
// a single datagram socket is opened up front and reused for every send over
// the relay's lifetime.
func NewMetricRelay(key string, opts MetricRelayOpts) (*MetricRelay, error) {
	relay := &MetricRelay{
		key:               key,
		defaultAttributes: copyAttributes(opts.DefaultAttributes),
		sink:              opts.Sink,
		clock:             opts.Clock,
		counters:          make(map[string]*Counter),
		timers:            make(map[string]*Timer),
		custom:            make(map[string]Metric),
	}

	if relay.clock == nil {
		relay.clock = clock.New()
	}

	if relay.sink == nil {
		host := opts.Host
		if host == "" {
			host = DefaultHost
		}

		port := opts.Port
		if port == 0 {
			port = DefaultPort
		}

		sink, err := NewUDPSink(host, port)
		if err != nil {
			return nil, err
		}

		relay.sink = sink
		relay.ownedSink = sink
	}

	return relay, nil
}

// Emit sends a one-off record immediately, bypassing the registry. When the
// attributes parameter is non-nil it takes the place of the relay's default
// attributes; the defaults apply only to calls that pass nil.
func (r *MetricRelay) Emit(name string, value float64, attributes map[string]string, tags []string) error {
	if attributes == nil {
		attributes = r.defaultAttributes
	}

	return r.sink.Send(NewRecord(r.key, name, value, attributes, tags))
}

// Counter returns the counter registered under name, creating and registering
// it on first use. Creation overlays opts.Attributes on the relay's default
// attributes; opts is ignored entirely for names that already exist.
func (r *MetricRelay) Counter(name string, opts CounterOpts) *Counter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if counter, ok := r.counters[name]; ok {
		return counter
	}

	attributes := copyAttributes(r.defaultAttributes)
	for key, value := range opts.Attributes {
		attributes[key] = value
	}

	counter := NewCounter(name, r.key, CounterOpts{
		Attributes: attributes,
		Tags:       opts.Tags,
		Value:      opts.Value,
	})
	r.counters[name] = counter

	return counter
}

// Incr increments the named counter by one, creating and registering it on
// first use.
func (r *MetricRelay) Incr(name string) {
	r.IncrBy(name, 1)
}

// IncrBy adds delta to the named counter, creating and registering it on
// first use.
func (r *MetricRelay) IncrBy(name string, delta int64) {
	r.Counter(name, CounterOpts{}).Add(delta)
}

// Timer returns the timer registered under name, creating and registering it
// on first use. Repeated calls return the same instance, so distant call
// sites share a single measurement handle. Creation overlays opts.Attributes
// on the relay's default attributes; opts is ignored entirely for names that
// already exist.
func (r *MetricRelay) Timer(name string, opts TimerOpts) *Timer {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if timer, ok := r.timers[name]; ok {
		return timer
	}

	attributes := copyAttributes(r.defaultAttributes)
	for key, value := range opts.Attributes {
		attributes[key] = value
	}

	clk := opts.Clock
	if clk == nil {
		clk = r.clock
	}

	timer := NewTimer(name, r.key, TimerOpts{
		Attributes: attributes,
		Tags:       opts.Tags,
		Clock:      clk,
	})
	r.timers[name] = timer

	return timer
}

// SetCounter registers a pre-built counter under name, replacing any existing
// registration.
func (r *MetricRelay) SetCounter(name string, counter *Counter) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.counters[name] = counter
}

// SetTimer registers a pre-built timer under name, replacing any existing
// registration.
func (r *MetricRelay) SetTimer(name string, timer *Timer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.timers[name] = timer
}

// SetMetric registers an arbitrary caller-supplied metric under name,
// replacing any existing registration. The relay asks nothing of it beyond
// the Flush capability.
func (r *MetricRelay) SetMetric(name string, metric Metric) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.custom[name] = metric
}

// Has reports whether any metric is registered under name.
func (r *MetricRelay) Has(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.counters[name]; ok {
		return true
	}

	if _, ok := r.timers[name]; ok {
		return true
	}

	_, ok := r.custom[name]

	return ok
}

// Flush serializes every registered metric to the relay's own sink. See
// FlushTo.
func (r *MetricRelay) Flush() error {
	return r.FlushTo(r.sink)
}

// FlushTo serializes every registered metric, exactly once each, to an
// explicit sink. Flushing does not mutate metric state: counters keep their
// accumulated totals and timers keep their last measurement. The first send
// error aborts the pass.
func (r *MetricRelay) FlushTo(sink Sink) error {
	r.mutex.Lock()
	metrics := make([]Metric, 0, len(r.counters)+len(r.timers)+len(r.custom))
	for _, counter := range r.counters {
		metrics = append(metrics, counter)
	}
	for _, timer := range r.timers {
		metrics = append(metrics, timer)
	}
	for _, metric := range r.custom {
		metrics = append(metrics, metric)
	}
	r.mutex.Unlock()

	for _, metric := range metrics {
		if err := metric.Flush(sink); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the relay-owned transport socket. It is a no-op for relays
// constructed with a sink override.
func (r *MetricRelay) Close() error {
	if r.ownedSink == nil {
		return nil
	}

	return r.ownedSink.Close()
}
