// Package buffer aggregates drained pulses into per-sweep summaries,
// the bookkeeping a database-backed recorder needs on top of the raw
// pulse stream (spec §6's recorder external collaborator). It is fed
// from a ring.Reader the same way the byte-stream exporter is — the
// core is agnostic to which consumer drains the ring.
package buffer

import "github.com/chslab/digdar/ring"

// Summary is one completed sweep's metadata: the antenna-rotation-
// level bookkeeping a recorder attaches to the pulses it has stored,
// grounded on the original system's sweep_metadata record.
type Summary struct {
	SerialNo        uint32  // the PL's ARP count (NumArp) shared by the sweep's pulses
	TimestampSec    uint32  // wall-clock time of the ARP carried by the sweep's first pulse
	TimestampNsec   uint32
	DurationSec     float64 // elapsed wall-clock time, first to last pulse in the sweep
	SamplesPerPulse int
	NPulses         int // pulses actually copied into the recorder's buffer
	NActualPulses   uint32 // pulses seen by the PL during the sweep (num_trig delta), including any dropped by sector exclusion or overrun
	RadarPRF        float64 // mean pulses/sec implied by NActualPulses over DurationSec
	RxPRF           float64 // mean pulses/sec implied by NPulses over DurationSec
	NACPs           uint32  // ACPs observed during the sweep
}

// Tracker accumulates pulse headers drained from a ring.Reader into
// Summary values, one per completed sweep. A sweep is "complete" when
// a pulse arrives whose NumArp differs from the value seen on the open
// sweep's first pulse.
//
// RangeCellSize and any other unit-converted, radar-specific quantity
// are deliberately not computed here: spec §1 puts the "generic
// oscilloscope parameter table and unit-conversion layer" out of
// scope, and a recorder wanting it applies that conversion itself from
// SamplesPerPulse and the fixed ADC rate.
type Tracker struct {
	samplesPerPulse int

	open      bool
	serialNo  uint32
	startSec  uint32
	startNsec uint32
	lastSec   uint32
	lastNsec  uint32
	firstTrig uint32
	lastTrig  uint32
	firstACP  uint32
	lastACP   uint32
	nPulses   int
}

// NewTracker returns a Tracker for sweeps of samplesPerPulse samples.
func NewTracker(samplesPerPulse int) *Tracker {
	return &Tracker{samplesPerPulse: samplesPerPulse}
}

// Feed processes one pulse's header. It returns a completed Summary
// and ok=true when this pulse belongs to a new sweep and the prior one
// has therefore just closed.
func (t *Tracker) Feed(h ring.PulseHeader) (summary Summary, ok bool) {
	if !t.open {
		t.startSweep(h)
		return Summary{}, false
	}

	if h.NumArp != t.serialNo {
		// The pulse that crosses the ARP boundary still belongs to the
		// closing sweep's trigger count: it was captured before the
		// software observed the new ARP.
		t.lastTrig = h.NumTrig
		summary = t.finish()
		t.startSweep(h)
		return summary, true
	}

	t.lastSec, t.lastNsec = h.ArpClockSec, h.ArpClockNsec
	t.lastTrig = h.NumTrig
	t.lastACP = uint32(h.AcpClock)
	t.nPulses++
	return Summary{}, false
}

// Flush closes out whatever sweep is currently open, for use at
// shutdown when no further ARP boundary will ever arrive.
func (t *Tracker) Flush() (summary Summary, ok bool) {
	if !t.open {
		return Summary{}, false
	}
	return t.finish(), true
}

func (t *Tracker) startSweep(h ring.PulseHeader) {
	t.open = true
	t.serialNo = h.NumArp
	t.startSec, t.startNsec = h.ArpClockSec, h.ArpClockNsec
	t.lastSec, t.lastNsec = h.ArpClockSec, h.ArpClockNsec
	t.firstTrig, t.lastTrig = h.NumTrig, h.NumTrig
	t.firstACP, t.lastACP = uint32(h.AcpClock), uint32(h.AcpClock)
	t.nPulses = 1
}

func (t *Tracker) finish() Summary {
	duration := float64(t.lastSec-t.startSec) + float64(t.lastNsec-t.startNsec)/1e9
	s := Summary{
		SerialNo:        t.serialNo,
		TimestampSec:    t.startSec,
		TimestampNsec:   t.startNsec,
		DurationSec:     duration,
		SamplesPerPulse: t.samplesPerPulse,
		NPulses:         t.nPulses,
		NActualPulses:   t.lastTrig - t.firstTrig,
		NACPs:           t.lastACP - t.firstACP,
	}
	if duration > 0 {
		s.RadarPRF = float64(s.NActualPulses) / duration
		s.RxPRF = float64(s.NPulses) / duration
	}
	t.open = false
	return s
}
