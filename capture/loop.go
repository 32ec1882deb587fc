// Package capture implements the producer side of the digdar pulse
// pipeline: arm, wait for trigger, snapshot saved-state metadata,
// rearm, copy samples out of the BRAM window, and publish the filled
// slot to the pulse ring (spec §4.4).
package capture

import (
	"math"

	"github.com/chslab/digdar/fpga"
	"github.com/chslab/digdar/ring"
)

// BRAMWrapWords is the wrap modulus for the trigger write pointer, as
// a half-word (sample) index into the video-channel BRAM window.
const BRAMWrapWords = fpga.SamplesPerBuff

// arpClockDivisor is the fixed-divisor estimate of ADC ticks per ACP,
// carried over from the original C's acp_clock fractional term: it
// assumes ACPs arrive no more than ~8 ms apart at the 125 MHz ADC
// clock. See design notes on this being a deliberately preserved,
// unresolved approximation.
const arpClockDivisor = 1.0e6

// adcNsPerTick is the ADC clock period used to back-pin wall-clock
// time to the PL's free-running clock (125 MHz → 8 ns/tick).
const adcNsPerTick = 8

// Exclusion is an azimuth-sector exclusion interval over ACP-fraction
// space [0, ACPsPerSweep). Begin > End denotes a wrapping interval
// covering [Begin, max] ∪ [0, End].
type Exclusion struct {
	Begin uint32
	End   uint32
}

// contains reports whether rr falls inside the exclusion, honoring
// wrap semantics.
func (e Exclusion) contains(rr uint32) bool {
	if e.Begin <= e.End {
		return rr >= e.Begin && rr <= e.End
	}
	return rr >= e.Begin || rr <= e.End
}

// RealtimeSource supplies the OS wall clock, abstracted so tests can
// drive the ARP back-pin with deterministic values instead of reading
// CLOCK_REALTIME.
type RealtimeSource interface {
	Now() (sec, nsec uint32)
}

// Loop is the producer: it drives an fpga.Controller and a ring.Writer
// in the tight arm/wait/copy cycle described in spec §4.4. A Loop must
// not be shared across goroutines — it is the single producer.
type Loop struct {
	ctrl            *fpga.Controller
	writer          *ring.Writer
	clock           RealtimeSource
	samplesPerPulse int
	exclusions      []Exclusion

	havePrevArp bool
	prevArpLow  uint32
	rtcArpSec   uint32
	rtcArpNsec  uint32
}

// Config holds the fixed-at-startup capture parameters (spec §3).
type Config struct {
	SamplesPerPulse int
	Exclusions      []Exclusion
}

// New builds a Loop bound to ctrl and writer. clock supplies the OS
// wall clock for the ARP time-pin; pass a real unix-backed source in
// production and a fake in tests.
func New(ctrl *fpga.Controller, writer *ring.Writer, clock RealtimeSource, cfg Config) *Loop {
	return &Loop{
		ctrl:            ctrl,
		writer:          writer,
		clock:           clock,
		samplesPerPulse: cfg.SamplesPerPulse,
		exclusions:      cfg.Exclusions,
	}
}

// Step polls for a trigger and, if one is ready, fully processes one
// pulse: snapshots saved state, detects an ARP boundary, closes the
// chunk if needed, rearms, fills the slot's metadata and samples, and
// (unless the pulse falls in an excluded sector) advances the ring
// writer. It reports whether a trigger was serviced, so callers can
// decide how long to sleep before polling again when it returns false.
func (l *Loop) Step() bool {
	if !l.ctrl.Triggered() {
		return false
	}

	_, trigWr := l.ctrl.WrPtrs()
	saved := l.ctrl.Saved()

	needClose := false
	if !l.havePrevArp || saved.ArpClockLow != l.prevArpLow {
		adcNow := l.ctrl.ClocksLow()
		rtcSec, rtcNsec := l.clock.Now()
		delta := adcNow - saved.ArpClockLow // wrap-safe u32 subtract
		l.rtcArpSec, l.rtcArpNsec = backPin(rtcSec, rtcNsec, delta)
		l.prevArpLow = saved.ArpClockLow
		l.havePrevArp = true
		needClose = true
	}

	if needClose {
		l.writer.CloseChunk()
	}

	// Re-arm immediately so the PL can start acquiring the next pulse
	// while this one is copied out of BRAM (§4.2, §4.4.e).
	l.ctrl.ArmAndTrigger(fpga.TrigDigdarPulse)

	slot := l.writer.Slot()
	header := l.deriveHeader(saved)
	slot.SetHeader(header)

	rr := uint32(math.Floor(float64(header.AcpClock)))
	if l.excluded(rr) {
		// Drop this pulse: do not advance, the slot is reused next time.
		return true
	}

	l.copySamples(slot, trigWr)
	l.writer.Advance()
	return true
}

// Run polls Step in a tight loop until stop is closed, sleeping
// briefly between unsuccessful polls via idle. Intended for production
// use; tests drive Step directly for determinism.
func (l *Loop) Run(stop <-chan struct{}, idle func()) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !l.Step() {
			if idle != nil {
				idle()
			}
		}
	}
}

func (l *Loop) deriveHeader(saved fpga.SavedState) ring.PulseHeader {
	trigClock := saved.TrigClockLow - saved.ArpClockLow // wrap-safe
	numTrig := saved.TrigCount - saved.TrigAtArp        // wrap-safe
	whole := saved.AcpCount - saved.AcpAtArp            // wrap-safe

	frac := float64(saved.TrigClockLow-saved.AcpClockLow) / arpClockDivisor
	if frac < 0 {
		frac = 0
	}
	if frac > 0.999 {
		frac = 0.999
	}

	return ring.PulseHeader{
		ArpClockSec:  l.rtcArpSec,
		ArpClockNsec: l.rtcArpNsec,
		TrigClock:    trigClock,
		AcpClock:     float32(whole) + float32(frac),
		NumTrig:      numTrig,
		NumArp:       saved.ArpCount,
	}
}

func (l *Loop) excluded(rr uint32) bool {
	for _, e := range l.exclusions {
		if e.contains(rr) {
			return true
		}
	}
	return false
}

// copySamples walks samplesPerPulse u16 samples out of the circular
// BRAM window starting at half-word index trigWr, wrapping modulo
// BRAMWrapWords. Each physical word packs two samples (low half then
// high half); an odd trigWr means the first emitted sample is the
// high half of word trigWr/2 (spec §4.4.h, properties 3/S5/S6).
func (l *Loop) copySamples(slot ring.Slot, trigWr uint32) {
	for i := 0; i < l.samplesPerPulse; i++ {
		hw := (trigWr + uint32(i)) % BRAMWrapWords
		word := l.ctrl.BRAMWord(int(hw / 2))
		var sample uint16
		if hw%2 == 0 {
			sample = uint16(word)
		} else {
			sample = uint16(word >> 16)
		}
		slot.SetSample(i, sample)
	}
}

// backPin computes the wall-clock time of an ARP that occurred delta
// ADC-clock ticks before rtcNow, normalizing the nanosecond
// carry/borrow (spec §4.4.c, property 5).
func backPin(rtcSec, rtcNsec, delta uint32) (sec, nsec uint32) {
	offsetNs := int64(delta) * adcNsPerTick
	totalNs := int64(rtcSec)*1e9 + int64(rtcNsec) - offsetNs
	if totalNs < 0 {
		totalNs = 0
	}
	return uint32(totalNs / 1e9), uint32(totalNs % 1e9)
}
