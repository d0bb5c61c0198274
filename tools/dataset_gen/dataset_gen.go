// Command dataset_gen is a tiny helper to generate deterministic key
// datasets for standalone benchmarking of slabcache (outside `go test`).
// It emits newline-separated hex-encoded keys, one per line, which can
// later be fed to load-testers or external benchmarking suites.
//
// Usage:
//
//	go run ./tools/dataset_gen -n 1000000 -dist=zipf -seed=42 -out keys.txt
//
// Flags:
//
//	-n         number of keys to generate (default 1e6)
//	-key-size  key size in bytes (default 20, matching a digest)
//	-dist      distribution: "uniform" or "zipf" (default uniform)
//	-zipfs     Zipf s parameter (>1)  (default 1.2)
//	-zipfv     Zipf v parameter (>=1) (default 1.0)
//	-seed      RNG seed (default current time)
//	-out       output file (default stdout)
//
// © 2025 slabcache authors. MIT License.
package main

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"
)

func main() {
	var (
		n       = flag.Int("n", 1_000_000, "number of keys to generate")
		keySize = flag.Int("key-size", 20, "key size in bytes")
		dist    = flag.String("dist", "uniform", "distribution: uniform or zipf")
		zipfS   = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV   = flag.Float64("zipfv", 1.0, "zipf v parameter (>=1)")
		seedVal = flag.Int64("seed", time.Now().UnixNano(), "PRNG seed")
		outPath = flag.String("out", "", "output file (default stdout)")
	)
	flag.Parse()

	if *keySize < 8 {
		fmt.Fprintln(os.Stderr, "key-size must be >= 8")
		os.Exit(1)
	}

	rnd := rand.New(rand.NewSource(*seedVal))

	var gen func() uint64
	switch *dist {
	case "uniform":
		gen = rnd.Uint64
	case "zipf":
		if *zipfS <= 1.0 || *zipfV < 1.0 {
			fmt.Fprintln(os.Stderr, "zipfs must be >1 and zipfv >=1")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, ^uint64(0))
		gen = z.Uint64
	default:
		fmt.Fprintln(os.Stderr, "unknown dist:", *dist)
		os.Exit(1)
	}

	var out *os.File
	var err error
	if *outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot create file:", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	w := bufio.NewWriterSize(out, 1<<20)
	defer w.Flush()

	key := make([]byte, *keySize)
	for i := 0; i < *n; i++ {
		// The low 8 bytes carry the generated value (the distribution that
		// matters); the rest pads out to key-size so keys look digest-shaped.
		binary.BigEndian.PutUint64(key[len(key)-8:], gen())
		fmt.Fprintln(w, hex.EncodeToString(key))
	}
}
