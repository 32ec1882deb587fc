// Package ring implements the fixed-capacity pulse ring buffer and its
// chunk-granular single-producer/single-consumer hand-off protocol
// (spec §3, §4.3).
package ring

import (
	"encoding/binary"
	"math"
)

// HeaderSize is the packed, little-endian size in bytes of PulseHeader
// (spec §3): arp_clock_sec, arp_clock_nsec, trig_clock (3*u32),
// acp_clock (f32), num_trig, num_arp (2*u32): 6 fields, 4 bytes each.
const HeaderSize = 24

// PulseHeader is the fixed metadata prefix of every pulse slot (spec §3).
type PulseHeader struct {
	ArpClockSec  uint32
	ArpClockNsec uint32
	TrigClock    uint32
	AcpClock     float32
	NumTrig      uint32
	NumArp       uint32
}

// MarshalBinary writes the header in the packed little-endian layout
// specified by §6's output byte format.
func (h PulseHeader) MarshalBinary() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.ArpClockSec)
	binary.LittleEndian.PutUint32(b[4:8], h.ArpClockNsec)
	binary.LittleEndian.PutUint32(b[8:12], h.TrigClock)
	binary.LittleEndian.PutUint32(b[12:16], math.Float32bits(h.AcpClock))
	binary.LittleEndian.PutUint32(b[16:20], h.NumTrig)
	binary.LittleEndian.PutUint32(b[20:24], h.NumArp)
	return b
}

// Slot is a typed view over one pulse's storage within the ring: a
// packed header followed by samplesPerPulse little-endian u16 samples.
// It never copies the underlying bytes — callers write through it
// directly into the ring's single backing allocation.
type Slot struct {
	raw []byte // HeaderSize + 2*samplesPerPulse bytes, backed by the ring
}

// SetHeader writes h into the slot's header bytes.
func (s Slot) SetHeader(h PulseHeader) {
	copy(s.raw[:HeaderSize], h.MarshalBinary())
}

// Header reads the slot's header bytes back out.
func (s Slot) Header() PulseHeader {
	b := s.raw[:HeaderSize]
	return PulseHeader{
		ArpClockSec:  binary.LittleEndian.Uint32(b[0:4]),
		ArpClockNsec: binary.LittleEndian.Uint32(b[4:8]),
		TrigClock:    binary.LittleEndian.Uint32(b[8:12]),
		AcpClock:     math.Float32frombits(binary.LittleEndian.Uint32(b[12:16])),
		NumTrig:      binary.LittleEndian.Uint32(b[16:20]),
		NumArp:       binary.LittleEndian.Uint32(b[20:24]),
	}
}

// SetSample writes the i'th sample (0-based) in the slot.
func (s Slot) SetSample(i int, v uint16) {
	off := HeaderSize + 2*i
	binary.LittleEndian.PutUint16(s.raw[off:off+2], v)
}

// Sample reads the i'th sample back out.
func (s Slot) Sample(i int) uint16 {
	off := HeaderSize + 2*i
	return binary.LittleEndian.Uint16(s.raw[off : off+2])
}

// Bytes returns the slot's full raw storage (header + samples), ready
// to hand to an io.Writer in the output byte format of §6.
func (s Slot) Bytes() []byte {
	return s.raw
}

// SlotSize returns the fixed per-slot byte size for samplesPerPulse
// samples: HeaderSize + 2 bytes per 16-bit sample (spec §8 property 2).
func SlotSize(samplesPerPulse int) int {
	return HeaderSize + 2*samplesPerPulse
}
