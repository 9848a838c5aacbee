// Package network contains listener abstractions for receiving metric record
// payloads over the network. It abstracts away the framing differences between
// the two supported transports: on UDP every datagram is one payload, while on
// TCP payloads are delimited by newlines on a long-lived stream.
package network
