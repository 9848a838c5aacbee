//go:generate go run golang.org/x/tools/cmd/stringer -type=Transport

package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// contextKey is a type alias for context keys passed to server handlers.
type contextKey int

// Transport describes a network transport type.
type Transport int

// Handler is a common interface that wraps logic for consuming record
// payloads received on any network transport.
type Handler interface {
	// HandlePacket describes the routine to run for every received payload.
	// The payload is owned by the handler; the server never reuses it.
	HandlePacket(ctx context.Context, payload []byte, remote net.Addr) error

	// ConsumeError is a callback invoked when the server fails to receive a
	// payload, or when the handler returns an error.
	ConsumeError(ctx context.Context, err error)
}

// UDPServer describes a server that receives one payload per datagram on a
// UDP address.
type UDPServer struct {
	addr string
	opts UDPServerOpts
}

// UDPServerOpts formalizes UDP server configuration options.
type UDPServerOpts struct {
	// MaxConcurrentReads configures the number of goroutines concurrently
	// reading datagrams off the shared socket. It is generally recommended to
	// set this value to the highest number of concurrent senders the server
	// can expect, but it is safe to set it lower.
	MaxConcurrentReads int
	// ReadTimeout bounds the amount of time a single read will wait for a
	// datagram before cycling. A zero value disables the read deadline.
	ReadTimeout time.Duration
}

// TCPServer describes a server that receives newline-delimited payloads on a
// TCP address.
type TCPServer struct {
	addr string
	opts TCPServerOpts
}

// TCPServerOpts formalizes TCP server configuration options.
type TCPServerOpts struct {
	// ReadTimeout is the maximum amount of time the server will wait for the
	// next payload on an established client connection, after which the
	// connection is closed. A zero value disables the read deadline.
	ReadTimeout time.Duration
}

const (
	// TransportContextKey is the name of the context key used to indicate the
	// network transport protocol the handler is serving. This is necessary
	// because the handler APIs are abstracted to the point that they are
	// inherently agnostic to the payload's underlying transport.
	TransportContextKey contextKey = iota
)

const (
	// TCP describes a TCP transport.
	TCP Transport = iota
	// UDP describes a UDP transport.
	UDP
)

// maxPayloadSize is the largest payload a single read accepts. Metric records
// are small; this bound exists to cap per-reader buffer allocations.
const maxPayloadSize = 65535

// NewUDPServer creates a UDP server listening on the specified address.
func NewUDPServer(addr string, opts UDPServerOpts) *UDPServer {
	// Sane option defaults
	if opts.MaxConcurrentReads <= 0 {
		opts.MaxConcurrentReads = 16
	}

	return &UDPServer{addr, opts}
}

// ListenAndServe starts listening on the UDP address with which the server
// was configured and indefinitely serves payloads using the specified
// handler. It returns an error if it fails to bind to the initialized
// address.
func (s *UDPServer) ListenAndServe(handler Handler) error {
	conn, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on UDP socket: err=%v", err)
	}

	s.Serve(conn, handler)

	return nil
}

// Serve indefinitely serves payloads received on an established packet
// connection. It spawns the configured number of reader goroutines and
// returns immediately.
func (s *UDPServer) Serve(conn net.PacketConn, handler Handler) {
	ctx := context.WithValue(context.Background(), TransportContextKey, UDP)

	for i := 0; i < s.opts.MaxConcurrentReads; i++ {
		go func() {
			buf := make([]byte, maxPayloadSize)

			for {
				if s.opts.ReadTimeout > 0 {
					if err := conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
						handler.ConsumeError(ctx, err)
						return
					}
				}

				n, remote, err := conn.ReadFrom(buf)
				if err != nil {
					// Deadline expiry is routine on a quiet socket.
					if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
						continue
					}

					if errors.Is(err, net.ErrClosed) {
						return
					}

					handler.ConsumeError(ctx, err)
					continue
				}

				payload := make([]byte, n)
				copy(payload, buf[:n])

				if err := handler.HandlePacket(ctx, payload, remote); err != nil {
					handler.ConsumeError(ctx, err)
				}
			}
		}()
	}
}

// NewTCPServer creates a TCP server listening on the specified address.
func NewTCPServer(addr string, opts TCPServerOpts) *TCPServer {
	return &TCPServer{addr, opts}
}

// ListenAndServe starts listening on the TCP address with which the server
// was configured and indefinitely serves payloads using the specified
// handler. It returns an error if it fails to bind to the initialized
// address.
func (s *TCPServer) ListenAndServe(handler Handler) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on TCP socket: err=%v", err)
	}

	s.Serve(ln, handler)

	return nil
}

// Serve indefinitely accepts client connections on an established listener,
// each served on its own goroutine. It returns immediately.
func (s *TCPServer) Serve(ln net.Listener, handler Handler) {
	ctx := context.WithValue(context.Background(), TransportContextKey, TCP)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}

				handler.ConsumeError(ctx, err)
				continue
			}

			go s.serveConn(ctx, conn, handler)
		}
	}()
}

// serveConn scans newline-delimited payloads off a single client connection
// until EOF, a read error, or deadline expiry.
func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxPayloadSize)

	for {
		if s.opts.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
				handler.ConsumeError(ctx, err)
				return
			}
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				handler.ConsumeError(ctx, err)
			}

			return
		}

		if len(scanner.Bytes()) == 0 {
			continue
		}

		payload := make([]byte, len(scanner.Bytes()))
		copy(payload, scanner.Bytes())

		if err := handler.HandlePacket(ctx, payload, conn.RemoteAddr()); err != nil {
			handler.ConsumeError(ctx, err)
		}
	}
}
