// Package export implements the consumer side of the digdar pulse
// pipeline: it claims closed chunks from the pulse ring and writes
// their pulses, in full, to a sink — stdout or a TCP peer (spec §4.5).
package export

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/chslab/digdar/buffer"
	"github.com/chslab/digdar/ring"
)

// idleSleep is the back-off the exporter takes when the ring has no
// chunk ready to claim (spec §4.5: "sleeps briefly (≤ 20 µs)").
const idleSleep = 20 * time.Microsecond

// Writer drains a ring.Reader and writes whole pulses to sink in
// production order. It is the entire surface a consumer needs — the
// SQLite-backed recorder named in spec §6 as an external collaborator
// would implement the same claim/write/release cycle against the same
// ring.Reader.
type Writer struct {
	reader *ring.Reader
	sink   io.Writer

	tracker *buffer.Tracker
	onSweep func(buffer.Summary)
}

// NewWriter returns an exporter draining reader into sink.
func NewWriter(reader *ring.Reader, sink io.Writer) *Writer {
	return &Writer{reader: reader, sink: sink}
}

// TrackSweeps feeds every drained pulse's header to tracker as it is
// written to the sink, and calls onSweep with each completed sweep's
// summary. This lets a sweep summarizer (package buffer) ride along
// with the byte-stream exporter over the same claimed chunks, rather
// than competing with it for a second Reader on the ring (§4.3: a ring
// has exactly one Reader).
func (w *Writer) TrackSweeps(tracker *buffer.Tracker, onSweep func(buffer.Summary)) {
	w.tracker = tracker
	w.onSweep = onSweep
}

// DialTCP resolves and connects one outbound TCP peer, the invocation
// surface's optional (host, port) destination (spec §6). A dial
// failure here is an init failure per §7: fatal, abort startup.
func DialTCP(hostPort string) (net.Conn, error) {
	conn, err := net.Dial("tcp", hostPort)
	if err != nil {
		return nil, fmt.Errorf("export: dial %s: %w", hostPort, err)
	}
	return conn, nil
}

// Run drains chunks until stop is closed, writing every pulse in full
// to the sink. A write failure is fatal to the consumer (spec §7,
// §4.4 failure policy): Run returns the error and the caller is
// expected to exit the process — the producer is unaffected and keeps
// running.
func (w *Writer) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			w.flushTracker()
			return nil
		default:
		}

		chunk, ok := w.reader.ClaimChunk()
		if !ok {
			time.Sleep(idleSleep)
			continue
		}
		for i := 0; i < chunk.Pulses; i++ {
			slot := chunk.Slot(i)
			if w.tracker != nil {
				if summary, ok := w.tracker.Feed(slot.Header()); ok {
					w.onSweep(summary)
				}
			}
			if err := w.writeFull(slot.Bytes()); err != nil {
				return err
			}
		}
	}
}

// flushTracker closes out whatever sweep is open in the tracker, since
// no further ARP boundary will arrive once the producer has stopped.
func (w *Writer) flushTracker() {
	if w.tracker == nil {
		return
	}
	if summary, ok := w.tracker.Flush(); ok {
		w.onSweep(summary)
	}
}

// writeFull retries partial writes until the whole slot is written or
// a write fails outright (spec §4.5: "on partial writes it retries the
// remainder; on fatal write error it exits the process").
func (w *Writer) writeFull(b []byte) error {
	for len(b) > 0 {
		n, err := w.sink.Write(b)
		if err != nil {
			return fmt.Errorf("export: write: %w", err)
		}
		if n < 0 {
			return fmt.Errorf("export: write returned negative count")
		}
		b = b[n:]
	}
	return nil
}
