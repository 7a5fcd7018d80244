// Command vshasm assembles Maestro VPU shader source into a SHBIN
// container, and optionally emits a companion C header of uniform
// offsets.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-maestro/vshasm/asm"
	"github.com/go-maestro/vshasm/internal/container"
	"github.com/go-maestro/vshasm/internal/header"
)

const version = "vshasm 1.0"

func main() {
	var (
		out     string
		hdr     string
		noNOP   bool
		showVer bool
	)

	fs := flag.NewFlagSet("vshasm", flag.ContinueOnError)
	fs.StringVar(&out, "o", "", "output SHBIN path (required)")
	fs.StringVar(&out, "out", "", "output SHBIN path (required)")
	fs.StringVar(&hdr, "h", "", "output C header path")
	fs.StringVar(&hdr, "header", "", "output C header path")
	fs.BoolVar(&noNOP, "n", false, "turn required padding NOPs into warnings instead of inserting them")
	fs.BoolVar(&noNOP, "no-nop", false, "turn required padding NOPs into warnings instead of inserting them")
	fs.BoolVar(&showVer, "v", false, "print the version and exit")
	fs.BoolVar(&showVer, "version", false, "print the version and exit")
	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	if showVer {
		fmt.Println(version)
		return
	}

	inputs := fs.Args()
	if out == "" || len(inputs) == 0 {
		printUsage(fs)
		os.Exit(2)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	a := asm.New(asm.Options{AutoNOP: !noNOP}, log)
	for _, path := range inputs {
		if err := assembleFile(a, path); err != nil {
			fatal(err)
		}
	}

	prog, err := a.Finish()
	if err != nil {
		fatal(err)
	}
	for _, w := range a.Warnings() {
		fmt.Fprintln(os.Stderr, w)
	}

	bin, err := container.Write(prog)
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(out, bin, 0o644); err != nil {
		fatal(err)
	}

	if hdr != "" {
		text := header.Generate(prog, a.UniformNames(), a.UniformKind)
		if err := os.WriteFile(hdr, []byte(text), 0o644); err != nil {
			fatal(err)
		}
	}
}

func assembleFile(a *asm.Assembler, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return a.AssembleFile(path, io.Reader(f))
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: vshasm -o output.shbin [-h output.h] [-n] file.vsh [file2.vsh ...]")
	fs.PrintDefaults()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "vshasm: %v\n", err)
	os.Exit(1)
}
