package fpga

import "fmt"

// Controller is a stateless wrapper translating capture-loop verbs into
// register writes on a Bus. It owns no state of its own — every method
// reads or writes directly through the mapped registers — so the
// capture loop can call Arm/SelectTrigger on every pulse without any
// controller-side bookkeeping to keep in sync.
type Controller struct {
	bus Bus
}

// NewController returns a Controller bound to bus (a *Window against
// real hardware, or a fake Bus in tests).
func NewController(bus Bus) *Controller {
	return &Controller{bus: bus}
}

// SetDecim writes the FPGA decimation rate. decim must be one of
// ValidDecimations; other values are rejected before they ever reach
// the register, since undefined decimation values leave the FPGA's
// output meaning unspecified (§3 capture parameters).
func (c *Controller) SetDecim(decim uint32) error {
	if !ValidDecimations[decim] {
		return fmt.Errorf("fpga: invalid decimation rate %d", decim)
	}
	c.bus.SetDecim(decim)
	return nil
}

// SetTriggerDelay sets the number of decimated samples to store after
// a trigger is detected (the "samples-after-trigger" count; §4.2 step 2).
func (c *Controller) SetTriggerDelay(n uint32) {
	c.bus.SetTriggerDelay(n)
}

// SetExtraOptions writes the options word. Must be called before the
// first Arm — the core always writes InitExtraOptions once at startup
// and never again (§4.1).
func (c *Controller) SetExtraOptions(mask uint32) {
	c.bus.SetExtraOptions(mask)
}

// Arm sets the ARM bit in the acquisition config register. Per the
// arming protocol (§4.2), callers must call Arm before SelectTrigger,
// never after.
func (c *Controller) Arm() {
	c.bus.Arm()
}

// SelectTrigger writes the trigger-source field. Source 10
// (TrigDigdarPulse) is what arms acquisition on the digdar-counted TRIG
// line; 0 (TrigNone) clears it.
func (c *Controller) SelectTrigger(src TrigSource) {
	c.bus.SelectTrigger(src)
}

// ArmAndTrigger performs the two-step arming sequence required by the
// PL: arm, then select the trigger source. Arming with a non-zero
// source already selected races the edge detector, so these two writes
// must always happen in this order and never interleaved with other
// register writes that could delay the second one.
func (c *Controller) ArmAndTrigger(src TrigSource) {
	c.Arm()
	c.SelectTrigger(src)
}

// Triggered reports whether the PL has detected (and completed
// acquisition for) the armed trigger.
func (c *Controller) Triggered() bool {
	return c.bus.Triggered()
}

// WrPtrs returns the current and trigger BRAM write pointers.
func (c *Controller) WrPtrs() (cur, trig uint32) {
	return c.bus.WrPtrs()
}

// Saved returns a coherent snapshot of the saved-at-capture counters.
func (c *Controller) Saved() SavedState {
	return c.bus.Saved()
}

// ClocksLow returns the live low 32 bits of the ADC clock.
func (c *Controller) ClocksLow() uint32 {
	return c.bus.ClocksLow()
}

// BRAMWord reads one 32-bit word from the video-channel sample window.
func (c *Controller) BRAMWord(i int) uint32 {
	return c.bus.BRAMWord(i)
}

// Init performs the one-time initialization sequence (§4.4 step 1):
// decimation, trigger delay, extra options, then the first arm+trigger.
func (c *Controller) Init(decim uint32, samplesPerPulse uint32) error {
	if err := c.SetDecim(decim); err != nil {
		return err
	}
	c.SetTriggerDelay(samplesPerPulse)
	c.SetExtraOptions(InitExtraOptions)
	c.ArmAndTrigger(TrigDigdarPulse)
	return nil
}
