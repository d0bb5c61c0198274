package main

// flags.go parses the inspector's command-line flags into an options
// struct, kept separate from main's control flow.

import (
	"flag"
	"fmt"
	"os"
	"time"
)

type options struct {
	devicePath string
	memBytes   int64
	slabSize   int64
	keys       int
	valueSize  int
	watch      bool
	interval   time.Duration
	version    bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.devicePath, "device", "", "path to a file or block device to use as the disk tier (created if missing)")
	flag.Int64Var(&opts.memBytes, "mem-bytes", 8<<20, "memory tier size in bytes")
	flag.Int64Var(&opts.slabSize, "slab-size", 1<<20, "slab size in bytes")
	flag.IntVar(&opts.keys, "keys", 10000, "number of synthetic keys to drive through the cache")
	flag.IntVar(&opts.valueSize, "value-size", 256, "synthetic value size in bytes")
	flag.BoolVar(&opts.watch, "watch", false, "keep driving load and reprinting stats until interrupted")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "refresh interval in watch mode")
	flag.BoolVar(&opts.version, "version", false, "print version and exit")
	flag.Parse()

	if opts.devicePath == "" {
		fmt.Fprintln(os.Stderr, "slabcache-inspect: -device is required")
		flag.Usage()
		os.Exit(2)
	}
	return opts
}
