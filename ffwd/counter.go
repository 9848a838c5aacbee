package ffwd

import "sync"

// Counter is a cumulative metric: a signed total that survives flushes and is
// only ever changed by explicit increments and decrements. It is safe for
// concurrent use.
type Counter struct {
	name       string
	key        string
	attributes map[string]string
	tags       []string

	mutex sync.Mutex
	value int64
}

// CounterOpts formalizes optional counter parameters.
type CounterOpts struct {
	// Attributes are additional attribute entries serialized alongside the
	// mandatory what attribute on every flushed record.
	Attributes map[string]string
	// Tags are free-form strings serialized verbatim on every flushed record.
	Tags []string
	// Value is the initial value of the counter.
	Value int64
}

// NewCounter creates a counter flushed under the given wire key and named by
// the record's what attribute.
func NewCounter(name string, key string, opts CounterOpts) *Counter {
	return &Counter{
		name:       name,
		key:        key,
		attributes: copyAttributes(opts.Attributes),
		tags:       normalizeTags(opts.Tags),
		value:      opts.Value,
	}
}

// Inc increments the counter by one.
func (c *Counter) Inc() {
	c.Add(1)
}

// Add adds delta to the counter. A negative delta decrements.
func (c *Counter) Add(delta int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.value += delta
}

// Value reads the current accumulated value.
func (c *Counter) Value() int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.value
}

// Flush serializes the counter's current state into a record and hands it to
// the sink. Flushing does not reset the accumulated value; successive flushes
// of an untouched counter report the same total.
func (c *Counter) Flush(sink Sink) error {
	return sink.Send(NewRecord(c.key, c.name, c.Value(), c.attributes, c.tags))
}
