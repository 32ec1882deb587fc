// Command digdar is the capture-engine entry point: it parses the
// invocation surface of spec §6, opens the PL register window, and
// runs the producer (capture.Loop) and consumer (export.Writer) until
// killed.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/chslab/digdar/buffer"
	"github.com/chslab/digdar/capture"
	"github.com/chslab/digdar/export"
	"github.com/chslab/digdar/fpga"
	"github.com/chslab/digdar/internal/config"
	"github.com/chslab/digdar/internal/dlog"
	"github.com/chslab/digdar/ring"
)

const version = "1.0.0"

// unixRealtime reads the OS wall clock via CLOCK_REALTIME, the
// production RealtimeSource for capture.Loop.
type unixRealtime struct{}

func (unixRealtime) Now() (sec, nsec uint32) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return 0, 0
	}
	return uint32(ts.Sec), uint32(ts.Nsec)
}

func main() {
	var (
		samples    = pflag.IntP("samples", "n", 4000, "samples per pulse")
		decim      = pflag.Uint32P("decim", "d", 1, "decimation rate")
		chunkSize  = pflag.Int("chunk-size", 400, "pulses per chunk")
		pulseCap   = pflag.IntP("pulses", "p", 8000, "pulse ring capacity (pulses)")
		acps       = pflag.UintP("acps", "a", 450, "ACPs per antenna rotation")
		cut        = pflag.Float64P("cut", "C", 0, "ACP offset at which a sweep is said to begin")
		removes    = pflag.StringArrayP("remove", "r", nil, "exclude ACP sector begin:end (repeatable)")
		useSum     = pflag.BoolP("sum", "s", false, "declare samples as raw sums rather than averages (decim<=4 only; the PL's return-sum option is always set)")
		tcpAddr    = pflag.StringP("tcp", "t", "", "host:port TCP sink (default stdout)")
		paramFile  = pflag.StringP("param-file", "P", "", "YAML register preset file")
		dumpParams = pflag.BoolP("dump-params", "D", false, "print detector registers and exit")
		showVer    = pflag.BoolP("version", "v", false, "print version and exit")
	)
	pflag.Parse()

	if *showVer {
		fmt.Println("digdar " + version)
		return
	}

	if !fpga.ValidDecimations[*decim] {
		dlog.Fatal("invalid decimation rate", "decim", *decim)
	}
	if *samples < 1 || *samples > 16384 {
		dlog.Fatal("samples_per_pulse out of range", "samples", *samples)
	}
	if *useSum && *decim > 4 {
		dlog.Warn("--sum disabled: decimation > 4", "decim", *decim)
		*useSum = false
	}

	exclusions, err := parseExclusions(*removes)
	if err != nil {
		dlog.Fatal("malformed --remove sector", "error", err)
	}
	for _, e := range exclusions {
		if e.Begin >= uint32(*acps) || e.End >= uint32(*acps) {
			dlog.Fatal("malformed --remove sector: bound >= acps", "acps", *acps, "begin", e.Begin, "end", e.End)
		}
	}

	cfg, found := config.Load()
	if !found {
		dlog.Warn("no ogdar.toml found, using built-in defaults")
	}
	dlog.Info("sweep convention", "acps_per_sweep", *acps, "cut", *cut)

	win, err := fpga.Open()
	if err != nil {
		dlog.Fatal("failed to open register window", "error", err)
	}
	defer win.Close()

	if *dumpParams {
		dumpDetectorRegisters(win)
		return
	}

	if *paramFile != "" {
		preset, err := config.LoadPreset(*paramFile)
		if err != nil {
			dlog.Fatal("failed to load register preset", "error", err)
		}
		config.ApplyPreset(win, preset)
	}

	ctrl := fpga.NewController(win)
	if err := ctrl.Init(*decim, uint32(*samples)); err != nil {
		dlog.Fatal("failed to initialize acquisition controller", "error", err)
	}

	// N = min(user_cap, floor(150MiB/slot_size)), then truncated down to
	// a whole number of chunks: the hard resource-safety ceiling on ring
	// allocation (spec §5), independent of whatever --pulses/--chunk-size
	// the operator asks for.
	const ringByteCap = 150 * 1024 * 1024
	slotSize := ring.SlotSize(*samples)
	maxPulses := maxInt(1, ringByteCap/slotSize)
	n := minInt(*pulseCap, maxPulses)
	// The ring protocol itself needs at least 2 physical chunks (one
	// for the writer to hold open, one for the reader to claim); that
	// structural floor takes priority in the pathological case where
	// the byte cap alone would leave fewer.
	numChunks := maxInt(2, n/maxInt(1, *chunkSize))
	pulseRing := ring.New(numChunks, *chunkSize, *samples)
	writer := pulseRing.NewWriter()
	reader := pulseRing.NewReader()

	loop := capture.New(ctrl, writer, unixRealtime{}, capture.Config{
		SamplesPerPulse: *samples,
		Exclusions:      exclusions,
	})

	var sink io.Writer = os.Stdout
	if *tcpAddr != "" {
		conn, err := export.DialTCP(*tcpAddr)
		if err != nil {
			dlog.Fatal("failed to connect TCP sink", "error", err)
		}
		defer conn.Close()
		sink = conn
		dlog.Info("connected TCP sink", "addr", *tcpAddr)
	}
	exporter := export.NewWriter(reader, sink)
	exporter.TrackSweeps(buffer.NewTracker(*samples), func(s buffer.Summary) {
		dlog.Info("sweep complete", "serial_no", s.SerialNo, "n_pulses", s.NPulses,
			"n_actual_pulses", s.NActualPulses, "n_acps", s.NACPs,
			"radar_prf", s.RadarPRF, "rx_prf", s.RxPRF, "duration_sec", s.DurationSec)
	})

	dlog.Info("starting capture", "model", cfg.Radar.Model, "prf", cfg.Radar.PRF,
		"samples", *samples, "decim", *decim, "chunk_size", *chunkSize)

	stop := make(chan struct{})
	go loop.Run(stop, func() { time.Sleep(5 * time.Microsecond) })

	if err := exporter.Run(stop); err != nil {
		dlog.Fatal("sink write failed", "error", err)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func parseExclusions(specs []string) ([]capture.Exclusion, error) {
	var out []capture.Exclusion
	for _, s := range specs {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("expected begin:end, got %q", s)
		}
		begin, err1 := strconv.ParseUint(parts[0], 10, 32)
		end, err2 := strconv.ParseUint(parts[1], 10, 32)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("non-numeric sector bound in %q", s)
		}
		out = append(out, capture.Exclusion{Begin: uint32(begin), End: uint32(end)})
	}
	return out, nil
}

func dumpDetectorRegisters(w *fpga.Window) {
	for name := range fpga.ControlMap {
		if reg, ok := w.RegisterAt(name); ok {
			fmt.Printf("%s %d\n", name, *reg)
		}
	}
}
