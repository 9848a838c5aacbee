package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedPacket struct {
	payload   string
	transport Transport
	remote    net.Addr
}

// channelHandler forwards every received payload and error to channels for
// test assertions.
type channelHandler struct {
	packets chan receivedPacket
	errors  chan error
}

func newChannelHandler() *channelHandler {
	return &channelHandler{
		packets: make(chan receivedPacket, 16),
		errors:  make(chan error, 16),
	}
}

func (h *channelHandler) HandlePacket(ctx context.Context, payload []byte, remote net.Addr) error {
	h.packets <- receivedPacket{
		payload:   string(payload),
		transport: ctx.Value(TransportContextKey).(Transport),
		remote:    remote,
	}

	return nil
}

func (h *channelHandler) ConsumeError(ctx context.Context, err error) {
	h.errors <- err
}

func (h *channelHandler) nextPacket(t *testing.T) receivedPacket {
	t.Helper()

	select {
	case packet := <-h.packets:
		return packet
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for payload")
		return receivedPacket{}
	}
}

func TestUDPServerServe(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	handler := newChannelHandler()
	server := NewUDPServer("", UDPServerOpts{MaxConcurrentReads: 2})
	server.Serve(conn, handler)

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte(`{"key":"key"}`))
	require.NoError(t, err)

	packet := handler.nextPacket(t)
	assert.Equal(t, `{"key":"key"}`, packet.payload)
	assert.Equal(t, UDP, packet.transport)
	assert.Equal(t, client.LocalAddr().String(), packet.remote.String())
}

func TestUDPServerOneDatagramPerPayload(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	handler := newChannelHandler()
	NewUDPServer("", UDPServerOpts{}).Serve(conn, handler)

	client, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("first"))
	require.NoError(t, err)
	_, err = client.Write([]byte("second"))
	require.NoError(t, err)

	payloads := map[string]bool{
		handler.nextPacket(t).payload: true,
		handler.nextPacket(t).payload: true,
	}

	// Concurrent readers make arrival order unpredictable.
	assert.Equal(t, map[string]bool{"first": true, "second": true}, payloads)
}

func TestUDPServerDefaultConcurrentReads(t *testing.T) {
	server := NewUDPServer("127.0.0.1:0", UDPServerOpts{})

	assert.Equal(t, 16, server.opts.MaxConcurrentReads)
}

func TestUDPServerListenAndServeBadAddress(t *testing.T) {
	server := NewUDPServer("256.0.0.1:bogus", UDPServerOpts{})

	assert.Error(t, server.ListenAndServe(newChannelHandler()))
}

func TestTCPServerServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	handler := newChannelHandler()
	NewTCPServer("", TCPServerOpts{}).Serve(ln, handler)

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("{\"key\":\"first\"}\n{\"key\":\"second\"}\n"))
	require.NoError(t, err)

	first := handler.nextPacket(t)
	assert.Equal(t, `{"key":"first"}`, first.payload)
	assert.Equal(t, TCP, first.transport)

	second := handler.nextPacket(t)
	assert.Equal(t, `{"key":"second"}`, second.payload)
}

func TestTCPServerSkipsBlankLines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	handler := newChannelHandler()
	NewTCPServer("", TCPServerOpts{}).Serve(ln, handler)

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("\n\npayload\n"))
	require.NoError(t, err)

	assert.Equal(t, "payload", handler.nextPacket(t).payload)
}

func TestTCPServerMultipleClients(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	handler := newChannelHandler()
	NewTCPServer("", TCPServerOpts{}).Serve(ln, handler)

	for i := 0; i < 3; i++ {
		client, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)

		_, err = client.Write([]byte("hello\n"))
		require.NoError(t, err)
		client.Close()
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, "hello", handler.nextPacket(t).payload)
	}
}

func TestTCPServerListenAndServeBadAddress(t *testing.T) {
	server := NewTCPServer("256.0.0.1:bogus", TCPServerOpts{})

	assert.Error(t, server.ListenAndServe(newChannelHandler()))
}

func TestTransportString(t *testing.T) {
	assert.Equal(t, "TCP", TCP.String())
	assert.Equal(t, "UDP", UDP.String())
}
