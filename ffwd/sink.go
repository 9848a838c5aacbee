package ffwd

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/multierr"
)

// Sink consumes serialized metric records on behalf of some delivery backend.
type Sink interface {
	// Send delivers a single record. Implementations must tolerate concurrent
	// invocations.
	Send(record *Record) error
}

// SinkFunc adapts an ordinary function to the Sink interface.
type SinkFunc func(record *Record) error

// Send invokes the wrapped function.
func (f SinkFunc) Send(record *Record) error {
	return f(record)
}

// Metric is the capability shared by everything a relay can flush. Counter
// and Timer satisfy it; callers may register their own implementations.
type Metric interface {
	// Flush serializes the metric's current state into one record and hands
	// it to the sink.
	Flush(sink Sink) error
}

var (
	_ Sink = (*UDPSink)(nil)
	_ Sink = NoopSink{}
	_ Sink = (*MultiSink)(nil)
	_ Sink = (SinkFunc)(nil)

	_ Metric = (*Counter)(nil)
	_ Metric = (*Timer)(nil)
)

// UDPSink ships each record as a single JSON datagram to an FFWD daemon. The
// destination address is resolved once at construction, and one datagram
// socket is opened once and shared by every subsequent send.
type UDPSink struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

// NewUDPSink resolves the daemon address and opens the shared socket.
func NewUDPSink(host string, port int) (*UDPSink, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("ffwd: error resolving daemon address: err=%v", err)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("ffwd: error opening datagram socket: err=%v", err)
	}

	return &UDPSink{conn: conn, addr: addr}, nil
}

// Send serializes the record to JSON and writes it as one datagram. There is
// no batching and no retry; a failed write surfaces as an error and the
// record is gone.
func (s *UDPSink) Send(record *Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ffwd: error serializing record: err=%v", err)
	}

	if _, err := s.conn.WriteToUDP(payload, s.addr); err != nil {
		return fmt.Errorf("ffwd: error writing record datagram: err=%v", err)
	}

	return nil
}

// Close closes the shared socket. The sink must not be used afterwards.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}

// NoopSink discards every record. It stands in for a real transport when no
// daemon destination is configured.
type NoopSink struct{}

// Send discards the record.
func (s NoopSink) Send(record *Record) error {
	return nil
}

// MultiSink duplicates every record to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that fans each record out to all of sinks, in
// order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Send delivers the record to every constituent sink. All sinks are attempted
// regardless of individual failures; errors are aggregated into the return
// value.
func (m *MultiSink) Send(record *Record) error {
	var err error

	for _, sink := range m.sinks {
		err = multierr.Append(err, sink.Send(record))
	}

	return err
}
