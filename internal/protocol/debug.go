package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/getsentry/raven-go"

	"ffwdrelay/ffwd"
	"ffwdrelay/internal/log"
	"ffwdrelay/internal/network"
)

// RecordLogHandler is a record-protocol-aware server handler that decodes
// received payloads and prints them through the configured logger. It is a
// development-time stand-in for a real FFWD daemon: it observes emission
// traffic and forwards nothing.
type RecordLogHandler struct {
	// Logger receives one line per decoded record.
	Logger log.Logger
	// Relay instruments the handler's own record intake.
	Relay *ffwd.MetricRelay
}

// ConsumeError logs the listener error and counts it.
func (h *RecordLogHandler) ConsumeError(ctx context.Context, err error) {
	h.Logger.Error("%v", err)
	h.Relay.Incr("debug.errors")

	raven.CaptureError(err, map[string]string{
		"transport": ctx.Value(network.TransportContextKey).(network.Transport).String(),
	})
}

// HandlePacket decodes a single record payload and logs its contents. The
// decode duration feeds the handler's own timer metric, so the debug agent
// exercises the same emission path it observes.
func (h *RecordLogHandler) HandlePacket(ctx context.Context, payload []byte, remote net.Addr) error {
	timer := h.Relay.Timer("debug.decode", ffwd.TimerOpts{})
	timer.Start()
	defer timer.Stop()

	/* Decode and sanity-check the record */

	var record ffwd.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		h.Relay.Incr("debug.malformed_records")
		return fmt.Errorf("debug: error decoding record: remote=%v err=%v", remote, err)
	}

	if record.Type != ffwd.RecordType {
		h.Relay.Incr("debug.malformed_records")
		return fmt.Errorf("debug: unexpected record type: type=%s remote=%v", record.Type, remote)
	}

	/* Surface its contents */

	h.Relay.Incr("debug.records")

	h.Logger.Info(
		"debug: received record: transport=%s remote=%v key=%s what=%s value=%v attributes=%v tags=%v",
		ctx.Value(network.TransportContextKey),
		remote,
		record.Key,
		record.Attributes["what"],
		record.Value,
		record.Attributes,
		record.Tags,
	)

	return nil
}
