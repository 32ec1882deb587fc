package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chslab/digdar/buffer"
	"github.com/chslab/digdar/ring"
)

func TestWriterDrainsClaimedChunks(t *testing.T) {
	r := ring.New(4, 2, 2)
	w := r.NewWriter()

	s := w.Slot()
	s.SetHeader(ring.PulseHeader{NumTrig: 1})
	s.SetSample(0, 10)
	s.SetSample(1, 11)
	w.Advance()

	s = w.Slot()
	s.SetHeader(ring.PulseHeader{NumTrig: 2})
	s.SetSample(0, 20)
	s.SetSample(1, 21)
	w.Advance() // closes the chunk (chunkSize=2)

	var buf bytes.Buffer
	ex := NewWriter(r.NewReader(), &buf)

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- ex.Run(stop) }()

	require.Eventually(t, func() bool {
		return buf.Len() == 2*ring.SlotSize(2)
	}, time.Second, time.Millisecond)

	close(stop)
	require.NoError(t, <-done)

	assert.Equal(t, 2*ring.SlotSize(2), buf.Len())
}

func TestWriterFeedsTrackSweepsCallback(t *testing.T) {
	r := ring.New(4, 3, 1)
	w := r.NewWriter()

	for _, h := range []ring.PulseHeader{
		{NumArp: 1, NumTrig: 1},
		{NumArp: 1, NumTrig: 2},
		{NumArp: 2, NumTrig: 3}, // crosses the ARP boundary, closes sweep 1
	} {
		s := w.Slot()
		s.SetHeader(h)
		w.Advance() // closes the chunk on the 3rd pulse (chunkSize=3)
	}

	var buf bytes.Buffer
	ex := NewWriter(r.NewReader(), &buf)
	summaries := make(chan buffer.Summary, 1)
	ex.TrackSweeps(buffer.NewTracker(1), func(s buffer.Summary) {
		summaries <- s
	})

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- ex.Run(stop) }()

	select {
	case s := <-summaries:
		assert.Equal(t, uint32(1), s.SerialNo)
		assert.Equal(t, uint32(2), s.NActualPulses) // trig 1->3, boundary pulse still belongs to sweep 1
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sweep summary")
	}

	close(stop)
	require.NoError(t, <-done)
}

type flakyWriter struct {
	n   int
	err error
}

func (f *flakyWriter) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.n > 0 && f.n < len(p) {
		n := f.n
		f.n = 0
		return n, nil
	}
	return len(p), nil
}

func TestWriterRetriesPartialWrites(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, ring.SlotSize(2))
	fw := &flakyWriter{n: 3}
	ex := NewWriter(nil, fw)

	require.NoError(t, ex.writeFull(payload))
}

func TestWriterFailsOnWriteError(t *testing.T) {
	fw := &flakyWriter{err: assert.AnError}
	ex := NewWriter(nil, fw)

	err := ex.writeFull([]byte{1, 2, 3})
	require.Error(t, err)
}
