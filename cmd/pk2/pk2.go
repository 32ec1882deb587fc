package main

// Peek/poke digdar detector registers by name.
//
// Usage:
//
//	pk2 REGNAME            # read
//	pk2 REGNAME VALUE      # write

import (
	"fmt"
	"os"
	"strconv"

	"github.com/chslab/digdar/fpga"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: pk2 REGNAME [VALUE]")
		os.Exit(1)
	}

	w, err := fpga.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open register window: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	name := os.Args[1]
	reg, ok := w.RegisterAt(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown register %q\n", name)
		os.Exit(1)
	}

	if len(os.Args) == 2 {
		fmt.Printf("%s=%d\n", name, *reg)
		return
	}

	value, err := strconv.ParseUint(os.Args[2], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad value %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}
	*reg = uint32(value)
	fmt.Printf("%s<-%d\n", name, value)
}
