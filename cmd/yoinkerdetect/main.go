// Command yoinkerdetect checks user identifiers against the yoinker
// detection service and writes results to a semicolon-delimited report,
// per-identifier JSON snapshots, and the 404.txt negative ledger.
//
// Usage:
//
//	yoinkerdetect [-o results.csv] [-e] [-c 5] [--strict] [--cache-only] [--redis addr] <input_file>
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/just-h/yoinker-detector/pkg/batch"
	"github.com/just-h/yoinker-detector/pkg/cache"
	"github.com/just-h/yoinker-detector/pkg/client"
	"github.com/just-h/yoinker-detector/pkg/logging"
	"github.com/just-h/yoinker-detector/pkg/ratelimit"
	"github.com/just-h/yoinker-detector/pkg/sink"
)

const (
	ledgerFile  = "404.txt"
	snapshotDir = "yoinkers"
)

type options struct {
	inputFile  string
	output     string
	saveEmpty  bool
	concurrent int
	strict     bool
	cacheOnly  bool
	redisAddr  string
	logLevel   string
	pretty     bool
}

func parseFlags(args []string) (options, error) {
	opts := options{}

	fs := flag.NewFlagSet("yoinkerdetect", flag.ContinueOnError)
	fs.StringVar(&opts.output, "o", "yoinker_results.csv", "output CSV file")
	fs.StringVar(&opts.output, "output", "yoinker_results.csv", "output CSV file")
	fs.BoolVar(&opts.saveEmpty, "e", false, "save empty results (users not found) to CSV and JSON")
	fs.BoolVar(&opts.saveEmpty, "empty", false, "save empty results (users not found) to CSV and JSON")
	fs.IntVar(&opts.concurrent, "c", 5, "maximum concurrent requests")
	fs.IntVar(&opts.concurrent, "concurrent", 5, "maximum concurrent requests")
	fs.BoolVar(&opts.strict, "strict", false, "treat the concurrency setting as a hard in-flight cap")
	fs.BoolVar(&opts.cacheOnly, "cache-only", false, "memoize in memory only; skip the 404.txt ledger and JSON snapshots")
	fs.StringVar(&opts.redisAddr, "redis", "", "Redis address for a shared memo cache (optional)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.pretty, "pretty", true, "human-readable console output")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: yoinkerdetect [flags] <input_file>\n\n")
		fmt.Fprintf(fs.Output(), "Input file holds one user identifier per line; blank lines are ignored.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return opts, fmt.Errorf("input file is required")
	}
	opts.inputFile = fs.Arg(0)

	return opts, nil
}

// readIdentifiers loads one identifier per line, skipping blanks.
func readIdentifiers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	return ids, nil
}

func run(opts options) error {
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(opts.logLevel),
		Pretty: opts.pretty,
		Output: os.Stderr,
	})
	ctx := context.Background()

	ids, err := readIdentifiers(opts.inputFile)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		log.Warn().Str("input", opts.inputFile).Msg("No identifiers found in input file")
		return nil
	}

	var (
		ledger    *cache.Ledger
		snapshots *cache.SnapshotStore
	)
	if !opts.cacheOnly {
		ledger, err = cache.OpenLedger(ledgerFile)
		if err != nil {
			return err
		}
		snapshots, err = cache.NewSnapshotStore(snapshotDir)
		if err != nil {
			return err
		}
	}

	var memo cache.MemoStore = cache.NewMemoryMemo(cache.DefaultMemoTTL, cache.DefaultMemoCapacity)
	if opts.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis %s: %w", opts.redisAddr, err)
		}
		defer rdb.Close()
		memo = cache.NewRedisMemo(rdb, cache.DefaultMemoTTL)
		log.Info().Str("addr", opts.redisAddr).Msg("Using Redis memo cache")
	}

	resolver := cache.NewResolver(memo, ledger, snapshots, logging.NewLogger("cache"))
	limiter := ratelimit.New(ratelimit.DefaultLimit, ratelimit.DefaultWindow, logging.NewLogger("ratelimit"))

	lookupClient, err := client.New(client.DefaultConfig(), limiter, resolver)
	if err != nil {
		return err
	}

	policy := batch.PolicyBatchSlack
	if opts.strict {
		policy = batch.PolicyStrictCap
	}

	resultSink := sink.New(ledger, snapshots, opts.output, opts.saveEmpty)
	orchestrator := batch.New(lookupClient, resultSink, ledger, batch.Config{
		Concurrency: opts.concurrent,
		Policy:      policy,
		TaskWait:    5 * time.Second,
	})

	ledgered := 0
	if ledger != nil {
		ledgered = ledger.Len()
	}
	log.Info().
		Str("input", opts.inputFile).
		Str("output", opts.output).
		Int("identifiers", len(ids)).
		Int("ledgered", ledgered).
		Bool("save_empty", opts.saveEmpty).
		Bool("cache_only", opts.cacheOnly).
		Msg("Starting yoinker detection")

	totals := orchestrator.Run(ctx, ids)

	log.Info().
		Int("completed", totals.Completed).
		Int("found", totals.Found).
		Int("unresolved", totals.Unresolved).
		Int("skipped", totals.Skipped).
		Str("report", opts.output).
		Msg("Done")

	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		log.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}
}
