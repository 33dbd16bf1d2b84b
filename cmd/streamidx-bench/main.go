// Package main provides streamidx-bench, a benchmark tool for
// pkg/streamidx and pkg/rawtable.
//
// Unlike tk-bench (which drives an external CLI binary through
// hyperfine), streamidx is a library: there is no subprocess to shell
// out to, so this tool times Put/Get/RMW loops in-process instead. The
// configuration surface, JSON result shape, and plain-file report
// output otherwise follow tk-bench's own conventions.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/calvinalkan/streamidx/pkg/codec"
	"github.com/calvinalkan/streamidx/pkg/durastore"
	"github.com/calvinalkan/streamidx/pkg/streamidx"
)

var errNoCapacities = errors.New("no capacities given")

// Config holds all benchmark configuration.
type Config struct {
	Capacities []int
	ModFactor  float64
	Ops        int
	OutDir     string
}

// OpResult holds timing for one operation kind at one table capacity.
type OpResult struct {
	Capacity  int     `json:"capacity"`
	Op        string  `json:"op"`
	Ops       int     `json:"ops"`
	TotalNs   int64   `json:"total_ns"`
	NsPerOp   float64 `json:"ns_per_op"`
	OpsPerSec float64 `json:"ops_per_sec"`
}

// Report is the full JSON report written to disk.
type Report struct {
	GeneratedAt string     `json:"generated_at"`
	Config      Config     `json:"config"`
	Results     []OpResult `json:"results"`
}

func main() {
	cfg := Config{}

	capsStr := flag.String("capacities", "1000,100000,1000000", "Comma-separated list of table capacities to benchmark")
	flag.Float64Var(&cfg.ModFactor, "mod-factor", 0.5, "Dirty-bucket budget as a fraction of effective capacity")
	flag.IntVar(&cfg.Ops, "ops", 200000, "Number of operations per benchmark")
	flag.StringVar(&cfg.OutDir, "out", ".benchmarks", "Output directory for reports")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: streamidx-bench [flags]\n\n")
		fmt.Fprint(os.Stderr, "Benchmarks streamidx Put/Get/RMW throughput across table capacities.\n\n")
		fmt.Fprint(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	caps, err := parseCapacities(*capsStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg.Capacities = caps

	report, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := writeReport(cfg.OutDir, report); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseCapacities(s string) ([]int, error) {
	var out []int

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid capacity %q: %w", part, err)
		}

		out = append(out, n)
	}

	if len(out) == 0 {
		return nil, errNoCapacities
	}

	return out, nil
}

func run(cfg Config) (Report, error) {
	report := Report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Config:      cfg,
	}

	for _, capacity := range cfg.Capacities {
		results, err := benchOne(capacity, cfg.ModFactor, cfg.Ops)
		if err != nil {
			return Report{}, fmt.Errorf("capacity %d: %w", capacity, err)
		}

		report.Results = append(report.Results, results...)
	}

	return report, nil
}

func benchOne(capacity int, modFactor float64, ops int) ([]OpResult, error) {
	dir, err := os.MkdirTemp("", "streamidx-bench-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	defer os.RemoveAll(dir)

	store, err := durastore.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	defer store.Close()

	idx, err := streamidx.NewHashIndex[int, int64](
		capacity,
		modFactor,
		func(k int) []byte { return []byte(strconv.Itoa(k)) },
		codec.Int64(),
		store,
		streamidx.Lazy,
	)
	if err != nil {
		return nil, fmt.Errorf("new hash index: %w", err)
	}

	putResult := timeOp(capacity, "put", ops, func(i int) error {
		return idx.Put(i%capacity, int64(i))
	})

	getResult := timeOp(capacity, "get", ops, func(i int) error {
		_, _, err := idx.Get(i % capacity)

		return err
	})

	rmwResult := timeOp(capacity, "rmw", ops, func(i int) error {
		_, err := idx.RMW(i%capacity, func(v *int64) { *v++ })

		return err
	})

	return []OpResult{putResult, getResult, rmwResult}, nil
}

func timeOp(capacity int, op string, ops int, f func(i int) error) OpResult {
	start := time.Now()

	for i := 0; i < ops; i++ {
		if err := f(i); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s op %d failed: %v\n", op, i, err)
		}
	}

	elapsed := time.Since(start)

	return OpResult{
		Capacity:  capacity,
		Op:        op,
		Ops:       ops,
		TotalNs:   elapsed.Nanoseconds(),
		NsPerOp:   float64(elapsed.Nanoseconds()) / float64(ops),
		OpsPerSec: float64(ops) / elapsed.Seconds(),
	}
}

func writeReport(outDir string, report Report) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %q: %w", outDir, err)
	}

	jsonPath := filepath.Join(outDir, "streamidx-bench.json")

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o600); err != nil {
		return fmt.Errorf("write %q: %w", jsonPath, err)
	}

	mdPath := filepath.Join(outDir, "streamidx-bench.md")
	if err := os.WriteFile(mdPath, []byte(renderMarkdown(report)), 0o600); err != nil {
		return fmt.Errorf("write %q: %w", mdPath, err)
	}

	fmt.Fprintf(os.Stdout, "wrote %s and %s\n", jsonPath, mdPath)

	return nil
}

func renderMarkdown(report Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# streamidx benchmark report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt)
	fmt.Fprintf(&b, "| capacity | op | ops/sec | ns/op |\n")
	fmt.Fprintf(&b, "|---:|---|---:|---:|\n")

	for _, r := range report.Results {
		fmt.Fprintf(&b, "| %d | %s | %.0f | %.1f |\n", r.Capacity, r.Op, r.OpsPerSec, r.NsPerOp)
	}

	return b.String()
}
