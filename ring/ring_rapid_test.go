package ring

import (
	"testing"

	"pgregory.net/rapid"
)

// TestRapidSPSCSafety is property 7 of spec §8: under randomized
// producer/consumer interleavings, the reader must only ever observe
// whole, closed chunks with a consistent pulse count, and the writer
// must never block regardless of how slowly (or unevenly) the reader
// drains.
func TestRapidSPSCSafety(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numChunks := rapid.IntRange(2, 6).Draw(t, "numChunks")
		chunkSize := rapid.IntRange(1, 8).Draw(t, "chunkSize")
		steps := rapid.IntRange(0, 200).Draw(t, "steps")

		r := New(numChunks, chunkSize, 4)
		w := r.NewWriter()
		rd := r.NewReader()

		var pulsesWritten, pulsesClaimed uint32
		var haveLast bool
		var lastNumTrig uint32
		for i := 0; i < steps; i++ {
			action := rapid.IntRange(0, 9).Draw(t, "action")
			switch {
			case action < 5:
				fillPulse(w, pulsesWritten)
				pulsesWritten++
			case action < 7:
				w.CloseChunk()
			default:
				chunk, ok := rd.ClaimChunk()
				if ok {
					if chunk.Pulses <= 0 || chunk.Pulses > chunkSize {
						t.Fatalf("claimed chunk with invalid pulse count %d", chunk.Pulses)
					}
					for p := 0; p < chunk.Pulses; p++ {
						// NumTrig was written in strictly increasing order
						// by fillPulse; a sacrificed (skipped) chunk only
						// ever moves this forward, never backward or
						// repeats a value. A decrease or repeat means the
						// reader observed a chunk the writer had already
						// overwritten.
						got := chunk.Slot(p).Header().NumTrig
						if haveLast && got <= lastNumTrig {
							t.Fatalf("claimed stale/corrupted pulse: got NumTrig %d after %d", got, lastNumTrig)
						}
						haveLast, lastNumTrig = true, got
					}
					pulsesClaimed += uint32(chunk.Pulses)
				}
			}
		}
		if pulsesClaimed > pulsesWritten {
			t.Fatalf("claimed more pulses (%d) than were ever written (%d)", pulsesClaimed, pulsesWritten)
		}
	})
}

// TestRapidChunkSizeAccounting is property 3's sibling for the ring
// layer: the slot the writer hands out must span exactly
// SlotSize(samplesPerPulse) bytes and read back every sample written
// into it, for any samplesPerPulse.
func TestRapidChunkSizeAccounting(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		samplesPerPulse := rapid.IntRange(0, 4096).Draw(t, "samplesPerPulse")
		r := New(2, 2, samplesPerPulse)
		w := r.NewWriter()
		s := w.Slot()
		if len(s.Bytes()) != SlotSize(samplesPerPulse) {
			t.Fatalf("slot is %d bytes, want %d", len(s.Bytes()), SlotSize(samplesPerPulse))
		}
		for i := 0; i < samplesPerPulse; i++ {
			s.SetSample(i, uint16(i))
		}
		for i := 0; i < samplesPerPulse; i++ {
			if s.Sample(i) != uint16(i) {
				t.Fatalf("sample %d round-tripped to %d", i, s.Sample(i))
			}
		}
	})
}
