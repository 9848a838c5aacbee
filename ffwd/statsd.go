package ffwd

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
)

// StatsdSink bridges flushed records into a statsd daemon, for deployments
// that run a statsd listener alongside or instead of an FFWD daemon. Counter
// records map to statsd counts, nanosecond timer records to statsd timings,
// and all other numeric records to gauges.
type StatsdSink struct {
	backend statsd.Statter
}

var _ Sink = (*StatsdSink)(nil)

// NewStatsdSink creates a statsd bridge that emits to the daemon at addr with
// the given prefix namespacing every metric.
func NewStatsdSink(addr string, prefix string) (*StatsdSink, error) {
	backend, err := statsd.NewClient(addr, prefix)
	if err != nil {
		return nil, fmt.Errorf("ffwd: error creating statsd client: err=%v", err)
	}

	return &StatsdSink{backend: backend}, nil
}

// Send translates one record into its statsd emission. Records carrying a
// null value, like a timer that never ran, are dropped silently; statsd has
// no notion of an absent measurement.
func (s *StatsdSink) Send(record *Record) error {
	name := s.formatMetric(record)

	switch value := record.Value.(type) {
	case int64:
		return s.backend.Inc(name, value, 1.0)
	case float64:
		if record.Attributes["unit"] == "ns" {
			return s.backend.TimingDuration(name, time.Duration(value), 1.0)
		}

		return s.backend.Gauge(name, int64(value), 1.0)
	case nil:
		return nil
	default:
		return fmt.Errorf("ffwd: unsupported record value for statsd bridge: value=%v", record.Value)
	}
}

// Close shuts down the underlying statsd client.
func (s *StatsdSink) Close() error {
	return s.backend.Close()
}

// formatMetric serializes a record's name and attributes into a single metric
// string. The what and unit attributes are already consumed by the name and
// value translations; record tags have no statsd line protocol counterpart.
// Neither reappears in the formatted string.
func (s *StatsdSink) formatMetric(record *Record) string {
	// Escape metric name and attribute components to avoid conflicts with
	// characters reserved by the statsd line protocol.
	escapedName := url.QueryEscape(record.Attributes["what"])

	var components []string
	for key, value := range record.Attributes {
		if key == "what" || key == "unit" {
			continue
		}

		components = append(components, fmt.Sprintf("%s=%s", url.QueryEscape(key), url.QueryEscape(value)))
	}

	if len(components) == 0 {
		return escapedName
	}

	// Attributes are delimited with InfluxDB-style formatting, in
	// lexicographic key order for deterministic output.
	sort.Strings(components)

	return fmt.Sprintf("%s,%s", escapedName, strings.Join(components, ","))
}
