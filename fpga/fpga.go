// Package fpga provides typed access to the Zynq programmable-logic
// registers and sample BRAM used by the digdar capture engine: the
// Red Pitaya oscilloscope acquisition block and the digdar
// pulse-detector block, both mapped from /dev/mem.
//
// Registers and BRAM are accessed by mmap()ing segments of /dev/mem
// and coercing the returned []byte into pointers to structs with
// unsafe.Pointer, the same approach used by the original C driver and
// by the earlier Go port this package is grounded on.
package fpga

import (
	"fmt"
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Physical register map, per §6 of the capture-engine specification.
const (
	AcqBaseAddr      = 0x40100000 // acquisition-engine register block base
	AcqBaseSize      = 0x50000    // size of the acquisition register block, including BRAM windows
	DetectorBaseAddr = 0x40600000 // pulse-detector register block base
	DetectorBaseSize = 0x0000B8   // size of the pulse-detector register block

	ChAOffset  = 0x10000 // video-channel BRAM offset within the acquisition block
	ChBOffset  = 0x20000 // trigger-channel BRAM offset
	XChAOffset = 0x30000 // slow ACP-channel BRAM offset
	XChBOffset = 0x40000 // slow ARP-channel BRAM offset

	SamplesPerBuff = 16 * 1024     // words in each circular BRAM window; must be a power of 2
	BuffSizeBytes  = 4 * SamplesPerBuff

	ConfArmBit  = 1 << 0 // arm_trigger bit in AcqRegs.Command
	ConfRstBit  = 1 << 1 // reset-write-state-machine bit
	TrigSrcMask = 0x0000000f

	// ExtraOptions bits written once at init, before the first arm (§4.1).
	OptPostTrigOnly  = 1 << 0 // only record samples after trigger is detected
	OptDoubleWidth   = 1 << 2 // use 32-bit (double-width) reads from the BRAM
	OptReturnSum     = 1 << 4 // return sample sum, not average, for decimation <= 4
	InitExtraOptions = OptPostTrigOnly | OptDoubleWidth | OptReturnSum
)

// TrigSource enumerates the FPGA's acquisition trigger sources.
type TrigSource uint32

const (
	TrigNone        TrigSource = 0
	TrigImmediate   TrigSource = 1
	TrigChAPos      TrigSource = 2
	TrigChANeg      TrigSource = 3
	TrigChBPos      TrigSource = 4
	TrigChBNeg      TrigSource = 5
	TrigExternal0   TrigSource = 6
	TrigExternal1   TrigSource = 7
	TrigASGPos      TrigSource = 8
	TrigASGNeg      TrigSource = 9
	TrigDigdarPulse TrigSource = 10 // digdar-counted TRIG line; what the capture loop uses
	TrigDigdarACP   TrigSource = 11
	TrigDigdarARP   TrigSource = 12
)

// ValidDecimations are the only decimation rates the FPGA build accepts.
var ValidDecimations = map[uint32]bool{
	1: true, 2: true, 3: true, 4: true, 8: true,
	64: true, 1024: true, 8192: true, 65536: true,
}

// AcqRegs is a direct image of the acquisition-engine register block.
// Field order and size must match the physical layout; never insert or
// reorder fields.
type AcqRegs struct {
	Command       uint32 `desc:"arm/reset control" mode:"rw"`
	TrigSource    uint32 `desc:"trigger source select" mode:"rw"`
	ChAThreshold  uint32 `desc:"channel A trigger threshold" mode:"rw"`
	ChBThreshold  uint32 `desc:"channel B trigger threshold" mode:"rw"`
	TriggerDelay  uint32 `desc:"samples to store after trigger" mode:"rw"`
	DataDec       uint32 `desc:"decimation factor" mode:"rw"`
	WrPtrCur      uint32 `desc:"current BRAM write pointer" mode:"r"`
	WrPtrTrigger  uint32 `desc:"BRAM write pointer at trigger" mode:"r"`
	ChAHysteresis uint32 `desc:"channel A hysteresis" mode:"rw"`
	ChBHysteresis uint32 `desc:"channel B hysteresis" mode:"rw"`
	ExtraOptions  uint32 `desc:"post_trig_only/double_width_read/return_sum" mode:"rw"`
}

// DetectorRegs is a direct image of the digdar pulse-detector register
// block: live trigger/ACP/ARP thresholds and counters, plus the
// saved-at-capture snapshots the capture loop reads every iteration.
type DetectorRegs struct {
	TrigThreshExcite uint32
	TrigThreshRelax  uint32
	TrigDelay        uint32
	TrigLatency      uint32
	TrigCount        uint32
	TrigClockLow     uint32
	TrigClockHigh    uint32
	TrigPrevClockLow uint32
	TrigPrevClockHi  uint32

	ACPThreshExcite uint32
	ACPThreshRelax  uint32
	ACPLatency      uint32
	ACPCount        uint32
	ACPClockLow     uint32
	ACPClockHigh    uint32
	ACPPrevClockLow uint32
	ACPPrevClockHi  uint32

	ARPThreshExcite uint32
	ARPThreshRelax  uint32
	ARPLatency      uint32
	ARPCount        uint32
	ARPClockLow     uint32
	ARPClockHigh    uint32
	ARPPrevClockLow uint32
	ARPPrevClockHi  uint32
	ACPPerARP       uint32

	SavedTrigCount         uint32
	SavedTrigClockLow      uint32
	SavedTrigClockHigh     uint32
	SavedTrigPrevClockLow  uint32
	SavedTrigPrevClockHigh uint32
	SavedACPCount          uint32
	SavedACPClockLow       uint32
	SavedACPClockHigh      uint32
	SavedACPPrevClockLow   uint32
	SavedACPPrevClockHigh  uint32
	SavedARPCount          uint32
	SavedARPClockLow       uint32
	SavedARPClockHigh      uint32
	SavedARPPrevClockLow   uint32
	SavedARPPrevClockHigh  uint32
	SavedACPPerARP         uint32

	ClocksLow  uint32
	ClocksHigh uint32
	ACPRaw     uint32
	ARPRaw     uint32

	ACPAtARP       uint32
	SavedACPAtARP  uint32
	TrigAtARP      uint32
	SavedTrigAtARP uint32
}

// Window owns the /dev/mem mappings for both register blocks and the
// video-channel BRAM, and is released exactly once via Close.
type Window struct {
	memFile *os.File

	acqMap      []byte
	detectorMap []byte
	bramMap     []byte

	Acq      *AcqRegs
	Detector *DetectorRegs
	bram     []uint32 // video channel samples, SamplesPerBuff words
}

// Open maps /dev/mem and returns a ready Window. Map failures are
// fatal to the caller: there is no recovery path without PL access.
func Open() (*Window, error) {
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/mem: %w", err)
	}

	w := &Window{memFile: f}
	pageSize := unix.Getpagesize()

	acqMap, acqOff, err := mapRegion(f, pageSize, AcqBaseAddr, AcqBaseSize)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("mmap acquisition block: %w", err)
	}
	w.acqMap = acqMap
	w.Acq = (*AcqRegs)(unsafe.Pointer(&acqMap[acqOff]))

	detMap, detOff, err := mapRegion(f, pageSize, DetectorBaseAddr, DetectorBaseSize)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("mmap detector block: %w", err)
	}
	w.detectorMap = detMap
	w.Detector = (*DetectorRegs)(unsafe.Pointer(&detMap[detOff]))

	bramMap, bramOff, err := mapRegion(f, pageSize, AcqBaseAddr+ChAOffset, BuffSizeBytes)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("mmap sample BRAM: %w", err)
	}
	w.bramMap = bramMap
	w.bram = unsafe.Slice((*uint32)(unsafe.Pointer(&bramMap[bramOff])), SamplesPerBuff)

	return w, nil
}

// mapRegion page-aligns addr and mmaps size bytes (rounded up to cover
// the requested region), returning the mapped slice and the byte
// offset within it where addr actually begins.
func mapRegion(f *os.File, pageSize int, addr int64, size int) (mapped []byte, offset int, err error) {
	pageAddr := addr &^ int64(pageSize-1)
	pageOff := int(addr - pageAddr)
	mapped, err = unix.Mmap(int(f.Fd()), pageAddr, pageOff+size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, 0, err
	}
	return mapped, pageOff, nil
}

// Close unmaps all regions and closes /dev/mem. Safe to call once;
// further use of the Window after Close is a programming error.
func (w *Window) Close() error {
	var firstErr error
	for _, m := range [][]byte{w.bramMap, w.detectorMap, w.acqMap} {
		if m != nil {
			if err := unix.Munmap(m); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	w.bramMap, w.detectorMap, w.acqMap = nil, nil, nil
	w.Acq, w.Detector, w.bram = nil, nil, nil
	if w.memFile != nil {
		if err := w.memFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.memFile = nil
	}
	return firstErr
}

// BRAMWord reads one 32-bit word from the video-channel circular
// sample window, wrapping modulo SamplesPerBuff. Each word packs two
// 14-bit samples (low half, then high half) per §4.1/§9: reading whole
// words is a throughput requirement, not an aesthetic choice.
func (w *Window) BRAMWord(i int) uint32 {
	return w.bram[i&(SamplesPerBuff-1)]
}

// Triggered reports whether the PL has cleared the trigger-source
// field, which is how it signals trigger detection (§4.1).
func (w *Window) Triggered() bool {
	return w.Acq.TrigSource&TrigSrcMask == 0
}

// WrPtrs returns the current and trigger BRAM write pointers.
func (w *Window) WrPtrs() (cur, trig uint32) {
	return w.Acq.WrPtrCur, w.Acq.WrPtrTrigger
}

// ClocksLow returns the live low 32 bits of the ADC clock.
func (w *Window) ClocksLow() uint32 {
	return w.Detector.ClocksLow
}

// SetDecim writes the FPGA decimation register directly. Validation of
// the rate happens one layer up, in Controller.SetDecim.
func (w *Window) SetDecim(decim uint32) { w.Acq.DataDec = decim }

// SetTriggerDelay writes the samples-after-trigger register.
func (w *Window) SetTriggerDelay(n uint32) { w.Acq.TriggerDelay = n }

// SetExtraOptions writes the options word.
func (w *Window) SetExtraOptions(mask uint32) { w.Acq.ExtraOptions = mask }

// Arm sets the ARM bit.
func (w *Window) Arm() { w.Acq.Command |= ConfArmBit }

// SelectTrigger writes the trigger-source field.
func (w *Window) SelectTrigger(src TrigSource) { w.Acq.TrigSource = uint32(src) }

// Saved takes a single-burst snapshot of the saved-at-capture counters
// consumed by the capture loop (§4.4 step b). Reading them together,
// in one method call, mirrors the "single burst read" requirement —
// there is no register-level atomicity across the PL bus, but reading
// them back-to-back with no intervening writes keeps them as coherent
// as the hardware allows.
func (w *Window) Saved() SavedState {
	d := w.Detector
	return SavedState{
		TrigCount:    d.SavedTrigCount,
		TrigClockLow: d.SavedTrigClockLow,
		ArpClockLow:  d.SavedARPClockLow,
		AcpClockLow:  d.SavedACPClockLow,
		AcpAtArp:     d.SavedACPAtARP,
		AcpCount:     d.SavedACPCount,
		ArpCount:     d.SavedARPCount,
		TrigAtArp:    d.SavedTrigAtARP,
	}
}

// SavedState is the coherent snapshot of saved-at-capture counters read
// once per trigger (§3, §4.4.b).
type SavedState struct {
	TrigCount    uint32
	TrigClockLow uint32
	ArpClockLow  uint32
	AcpClockLow  uint32
	AcpAtArp     uint32
	AcpCount     uint32
	ArpCount     uint32
	TrigAtArp    uint32
}

// Bus is the set of operations the acquisition controller and capture
// loop need from a register window. *Window implements it against real
// hardware; tests implement it with an in-memory fake so the capture
// loop's logic can be exercised without /dev/mem (§8: "a test harness
// with a simulated register window").
type Bus interface {
	SetDecim(decim uint32)
	SetTriggerDelay(n uint32)
	SetExtraOptions(mask uint32)
	Arm()
	SelectTrigger(src TrigSource)
	Triggered() bool
	WrPtrs() (cur, trig uint32)
	BRAMWord(i int) uint32
	ClocksLow() uint32
	Saved() SavedState
}

var _ Bus = (*Window)(nil)

// ControlMap maps a register name to its byte offset within
// DetectorRegs, built once by reflecting over the struct field order —
// the same approach as the original C's setup_param_name_map and the
// earlier Go port's verilog generator. Used by the register-preset
// loader and by the showreg/pk2 diagnostic tools.
var ControlMap = buildControlMap()

func buildControlMap() map[string]uintptr {
	m := make(map[string]uintptr)
	t := reflect.TypeOf(DetectorRegs{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		m[toSnake(f.Name)] = f.Offset
	}
	return m
}

// toSnake converts an exported Go field name (e.g. "SavedTrigClockLow")
// to the lower_snake_case register name used in preset files and by the
// original C parameter map ("saved_trig_clock_low"). Acronym runs
// (ACP, ARP, TRIG...) are kept together: a new word starts at an
// uppercase letter only when the previous rune is lowercase, or when
// this uppercase letter is itself followed by a lowercase one (the
// first letter of the next word, as in the "P" before "er" in
// "ACPPerARP" -> "acp_per_arp").
func toSnake(name string) string {
	r := []rune(name)
	out := make([]byte, 0, len(r)+8)
	for i, c := range r {
		if c >= 'A' && c <= 'Z' {
			prevLower := i > 0 && r[i-1] >= 'a' && r[i-1] <= 'z'
			nextLower := i+1 < len(r) && r[i+1] >= 'a' && r[i+1] <= 'z'
			if i > 0 && (prevLower || nextLower) {
				out = append(out, '_')
			}
			out = append(out, byte(c-'A'+'a'))
		} else {
			out = append(out, byte(c))
		}
	}
	return string(out)
}

// RegisterAt returns a pointer to the named detector register for
// direct peek/poke access (diagnostic tools only; the capture loop
// never uses this path).
func (w *Window) RegisterAt(name string) (*uint32, bool) {
	off, ok := ControlMap[name]
	if !ok {
		return nil, false
	}
	base := unsafe.Pointer(w.Detector)
	return (*uint32)(unsafe.Add(base, off)), true
}
