package capture

import "github.com/chslab/digdar/fpga"

// fakeBus is an in-memory simulated register window implementing
// fpga.Bus, used to exercise the capture loop without /dev/mem (spec
// §8: "a test harness with a simulated register window").
type fakeBus struct {
	armed     bool
	trigSrc   fpga.TrigSource
	decim     uint32
	trigDelay uint32
	extraOpts uint32
	curWr     uint32
	trigWr    uint32
	bram      []uint32
	clocksLow uint32
	saved     fpga.SavedState

	trace []string // records arm/trigger-source writes in order, for property 1
}

func newFakeBus(bramWords int) *fakeBus {
	return &fakeBus{bram: make([]uint32, bramWords)}
}

func (b *fakeBus) SetDecim(decim uint32)       { b.decim = decim }
func (b *fakeBus) SetTriggerDelay(n uint32)    { b.trigDelay = n }
func (b *fakeBus) SetExtraOptions(mask uint32) { b.extraOpts = mask }

func (b *fakeBus) Arm() {
	b.armed = true
	b.trace = append(b.trace, "arm")
}

func (b *fakeBus) SelectTrigger(src fpga.TrigSource) {
	if src != fpga.TrigNone && !b.armed {
		b.trace = append(b.trace, "source-without-arm!")
	}
	b.trigSrc = src
	if src != fpga.TrigNone {
		b.trace = append(b.trace, "source")
	}
}

func (b *fakeBus) Triggered() bool { return b.trigSrc&fpga.TrigSrcMask == 0 }

func (b *fakeBus) WrPtrs() (cur, trig uint32) { return b.curWr, b.trigWr }

func (b *fakeBus) BRAMWord(i int) uint32 { return b.bram[i%len(b.bram)] }

func (b *fakeBus) ClocksLow() uint32 { return b.clocksLow }

func (b *fakeBus) Saved() fpga.SavedState { return b.saved }

var _ fpga.Bus = (*fakeBus)(nil)
