// Package protocol concerns itself with the FFWD JSON record protocol. It
// contains logic for decoding record payloads received off the wire and
// surfacing their contents for local inspection.
package protocol
