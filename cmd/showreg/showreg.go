package main

// Show one or more digdar registers at repeated intervals.
//
// Usage:
//
//    showreg N REGNAME1 M1 REGNAME2 M2 ...
//
// where
//  - N is the number of milliseconds to wait between burst reads of the
//    registers
//  - REGNAMEi is the name of a register
//  - Mi is the number of reads to do in a burst from the REGNAMEi

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/chslab/digdar/fpga"
)

type watch struct {
	name  string
	burst int
	reg   *uint32
}

func main() {
	if len(os.Args) < 4 || len(os.Args)%2 != 0 {
		fmt.Fprintln(os.Stderr, "usage: showreg N REGNAME1 M1 REGNAME2 M2 ...")
		os.Exit(1)
	}

	intervalMs, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad interval %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	w, err := fpga.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open register window: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	var watches []watch
	for i := 2; i+1 < len(os.Args); i += 2 {
		name := os.Args[i]
		burst, err := strconv.Atoi(os.Args[i+1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad burst count %q for %s: %v\n", os.Args[i+1], name, err)
			os.Exit(1)
		}
		reg, ok := w.RegisterAt(name)
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown register %q\n", name)
			os.Exit(1)
		}
		watches = append(watches, watch{name: name, burst: burst, reg: reg})
	}

	interval := time.Duration(intervalMs) * time.Millisecond
	for {
		for _, wa := range watches {
			for i := 0; i < wa.burst; i++ {
				fmt.Printf("%s=%d ", wa.name, *wa.reg)
			}
		}
		fmt.Println()
		time.Sleep(interval)
	}
}
