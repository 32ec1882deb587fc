package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chslab/digdar/ring"
)

func TestTrackerClosesSweepOnArpChange(t *testing.T) {
	tr := NewTracker(4)

	_, ok := tr.Feed(ring.PulseHeader{NumArp: 1, ArpClockSec: 100, NumTrig: 10, AcpClock: 0})
	assert.False(t, ok)

	_, ok = tr.Feed(ring.PulseHeader{NumArp: 1, ArpClockSec: 100, NumTrig: 11, AcpClock: 1})
	assert.False(t, ok)

	summary, ok := tr.Feed(ring.PulseHeader{NumArp: 2, ArpClockSec: 101, NumTrig: 12, AcpClock: 0})
	require.True(t, ok)
	assert.Equal(t, uint32(1), summary.SerialNo)
	assert.Equal(t, 2, summary.NPulses)
	assert.Equal(t, uint32(2), summary.NActualPulses) // 12-10, since the boundary pulse starts the next sweep
}

func TestTrackerFlushClosesOpenSweep(t *testing.T) {
	tr := NewTracker(4)
	tr.Feed(ring.PulseHeader{NumArp: 5, NumTrig: 1})
	tr.Feed(ring.PulseHeader{NumArp: 5, NumTrig: 2})

	summary, ok := tr.Flush()
	require.True(t, ok)
	assert.Equal(t, uint32(5), summary.SerialNo)
	assert.Equal(t, 2, summary.NPulses)

	_, ok = tr.Flush()
	assert.False(t, ok, "second flush with nothing open")
}
