package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"moria.us/mlink/blobs"
	"moria.us/mlink/config"
	"moria.us/mlink/image"
	"moria.us/mlink/link"
	"moria.us/mlink/loader"
	"moria.us/mlink/logctx"
	"moria.us/mlink/model"
)

func mainE() error {
	var (
		output      string
		entry       string
		subsystem   string
		tier        string
		tinyHeader  bool
		hunkTries   int
		hashTries   int
		hashSizeMiB int
	)
	flag.StringVar(&output, "output", "", "Output file")
	flag.StringVar(&entry, "entry", "_main", "Entry point symbol")
	flag.StringVar(&subsystem, "subsystem", "console", "Subsystem: console or windows")
	flag.StringVar(&tier, "tier", "instant", "Compression search tier: instant, fast, slow, very-slow")
	flag.BoolVar(&tinyHeader, "tiny", false, "Use the 1k single-model header instead of the 4k header")
	flag.IntVar(&hunkTries, "hunk-tries", 0, "Empirical hunk-order search budget (0 disables it)")
	flag.IntVar(&hashTries, "hash-tries", 9, "Number of hash-table sizes to try")
	flag.IntVar(&hashSizeMiB, "hash-size", 1, "Starting hash-table size, in MiB")
	flag.Parse()
	if output == "" {
		return errors.New("flag -output is required")
	}
	args := flag.Args()
	if len(args) != 1 {
		return fmt.Errorf("got %d arguments, expected 1 (a hunk manifest)", len(args))
	}
	input := args[0]

	hunks, err := loader.JSONSource{Path: input}.Load()
	if err != nil {
		return fmt.Errorf("%s: %v", input, err)
	}

	opts := config.NewOptions()
	opts.EntrySymbol = entry
	opts.TinyHeader = tinyHeader
	opts.HunkTries = hunkTries
	opts.HashTries = hashTries
	opts.HashSizeMiB = hashSizeMiB
	switch subsystem {
	case "console":
		opts.Subsystem = image.Console
	case "windows":
		opts.Subsystem = image.Windows
	default:
		return fmt.Errorf("unknown subsystem %q", subsystem)
	}
	switch tier {
	case "instant":
		opts.Tier = model.Instant
	case "fast":
		opts.Tier = model.Fast
	case "slow":
		opts.Tier = model.Slow
	case "very-slow":
		opts.Tier = model.VerySlow
	default:
		return fmt.Errorf("unknown tier %q", tier)
	}

	var header, depacker, hashTable *blobs.Blob
	if opts.TinyHeader {
		header = &blobs.HeaderTiny
	} else {
		header = &blobs.HeaderFull
	}
	depackerBlob := blobs.Depacker(blobs.DepackerStandard)
	depacker = &depackerBlob
	hashTable = &blobs.Blob{Name: "hash table"}

	logger := logctx.New(slog.Default())
	l := link.New(opts, logger)
	res, err := l.Link(context.Background(), hunks, nil, header.ToHunk(), depacker.ToHunk(), hashTable.ToHunk(), nil)
	if err != nil {
		return fmt.Errorf("%s: %v", input, err)
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}

	fp, err := os.Create(output)
	if err != nil {
		return err
	}
	defer fp.Close()
	if _, err := fp.Write(res.Image.Data); err != nil {
		return err
	}
	return fp.Close() // Double-close is OK
}

func main() {
	if err := mainE(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
