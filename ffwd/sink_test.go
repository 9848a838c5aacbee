package ffwd

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// recordingSink captures every record handed to it, in order.
type recordingSink struct {
	mutex   sync.Mutex
	records []*Record
}

func (s *recordingSink) Send(record *Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.records = append(s.records, record)

	return nil
}

func (s *recordingSink) Records() []*Record {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]*Record{}, s.records...)
}

// failingSink rejects every record with a fixed error.
type failingSink struct {
	err error
}

func (s failingSink) Send(record *Record) error {
	return s.err
}

// startForwarder opens a loopback datagram listener standing in for a local
// FFWD daemon, returning its port and a function that reads one datagram.
func startForwarder(t *testing.T) (int, func() (string, net.Addr)) {
	t.Helper()

	listener, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		listener.Close()
	})

	read := func() (string, net.Addr) {
		buf := make([]byte, 65536)
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(3*time.Second)))

		n, remote, err := listener.ReadFrom(buf)
		require.NoError(t, err)

		return string(buf[:n]), remote
	}

	return listener.LocalAddr().(*net.UDPAddr).Port, read
}

func TestSinkFunc(t *testing.T) {
	var received *Record
	sink := SinkFunc(func(record *Record) error {
		received = record
		return nil
	})

	record := NewRecord("key", "test", int64(1), nil, nil)

	require.NoError(t, sink.Send(record))
	assert.Equal(t, record, received)
}

func TestUDPSinkSend(t *testing.T) {
	port, read := startForwarder(t)

	sink, err := NewUDPSink("127.0.0.1", port)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Send(NewRecord("key", "test", int64(2), nil, nil)))

	payload, _ := read()
	assert.JSONEq(
		t,
		`{"key":"key","type":"metric","value":2,"attributes":{"what":"test"},"tags":[]}`,
		payload,
	)
}

func TestUDPSinkReusesSocket(t *testing.T) {
	port, read := startForwarder(t)

	sink, err := NewUDPSink("127.0.0.1", port)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Send(NewRecord("key", "first", int64(1), nil, nil)))
	require.NoError(t, sink.Send(NewRecord("key", "second", int64(2), nil, nil)))

	_, firstRemote := read()
	_, secondRemote := read()

	// Both datagrams originate from the same local socket.
	assert.Equal(t, firstRemote.String(), secondRemote.String())
}

func TestUDPSinkOneDatagramPerRecord(t *testing.T) {
	port, read := startForwarder(t)

	sink, err := NewUDPSink("127.0.0.1", port)
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Send(NewRecord("key", "first", int64(1), nil, nil)))
	require.NoError(t, sink.Send(NewRecord("key", "second", int64(2), nil, nil)))

	first, _ := read()
	second, _ := read()

	assert.Contains(t, first, `"what":"first"`)
	assert.Contains(t, second, `"what":"second"`)
}

func TestUDPSinkSerializationError(t *testing.T) {
	port, _ := startForwarder(t)

	sink, err := NewUDPSink("127.0.0.1", port)
	require.NoError(t, err)
	defer sink.Close()

	err = sink.Send(&Record{
		Key:   "key",
		Type:  RecordType,
		Value: make(chan int),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "serializing record")
}

func TestUDPSinkSendAfterClose(t *testing.T) {
	port, _ := startForwarder(t)

	sink, err := NewUDPSink("127.0.0.1", port)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	assert.Error(t, sink.Send(NewRecord("key", "test", int64(1), nil, nil)))
}

func TestNoopSink(t *testing.T) {
	assert.NoError(t, NoopSink{}.Send(NewRecord("key", "test", int64(1), nil, nil)))
}

func TestMultiSinkFanOut(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	sink := NewMultiSink(first, second)

	record := NewRecord("key", "test", int64(1), nil, nil)

	require.NoError(t, sink.Send(record))
	require.Len(t, first.Records(), 1)
	require.Len(t, second.Records(), 1)
}

func TestMultiSinkContinuesPastFailures(t *testing.T) {
	recording := &recordingSink{}
	sink := NewMultiSink(
		failingSink{err: fmt.Errorf("first backend down")},
		recording,
		failingSink{err: fmt.Errorf("third backend down")},
	)

	err := sink.Send(NewRecord("key", "test", int64(1), nil, nil))

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Len(t, recording.Records(), 1)
}
