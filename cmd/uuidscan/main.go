// Command uuidscan walks directory trees looking for user identifiers of
// the form usr_<uuid> inside arbitrary files (logs, caches, databases).
// Matches are appended to an output file as they are found, so a long scan
// can be interrupted and still yield results.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/just-h/yoinker-detector/pkg/logging"
)

var userIDPattern = regexp.MustCompile(`(?i)usr_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

const (
	// chunkSize is how much of a file is read per scan pass.
	chunkSize = 1 << 20

	// overlap carries the tail of each chunk into the next so matches
	// spanning a chunk boundary are not lost. An identifier is 40 bytes.
	overlap = 64

	// maxFileSize skips pathological inputs (disk images, core dumps).
	maxFileSize = 10 << 30
)

type scanner struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	output  *os.File
	logger  zerolog.Logger
	workers int

	filesScanned int64
	filesSkipped int64
}

func newScanner(outputPath string, workers int) (*scanner, error) {
	if workers <= 0 {
		workers = 4
	}
	// Truncate at start: the scan rebuilds the list from scratch.
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", outputPath, err)
	}
	return &scanner{
		seen:    make(map[string]struct{}),
		output:  f,
		logger:  logging.NewLogger("uuidscan"),
		workers: workers,
	}, nil
}

// record appends an identifier to the output if it has not been seen yet.
func (s *scanner) record(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[id]; dup {
		return
	}
	s.seen[id] = struct{}{}
	if _, err := fmt.Fprintln(s.output, id); err != nil {
		s.logger.Error().Err(err).Str("user_id", id).Msg("Failed to append identifier")
	}
}

// scanFile reads one file in chunks, carrying a small overlap between
// chunks so identifiers on the boundary still match.
func (s *scanner) scanFile(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if info.Size() > maxFileSize {
		s.mu.Lock()
		s.filesSkipped++
		s.mu.Unlock()
		s.logger.Warn().Str("file", path).Int64("size", info.Size()).Msg("Skipping oversized file")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	buf := make([]byte, chunkSize+overlap)
	carry := 0
	for {
		n, err := f.Read(buf[carry:])
		if n > 0 {
			window := buf[:carry+n]
			for _, match := range userIDPattern.FindAll(window, -1) {
				s.record(string(match))
			}
			if len(window) > overlap {
				copy(buf, window[len(window)-overlap:])
				carry = overlap
			} else {
				carry = len(window)
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Debug().Err(err).Str("file", path).Msg("Read aborted")
			}
			break
		}
	}

	s.mu.Lock()
	s.filesScanned++
	scanned := s.filesScanned
	s.mu.Unlock()
	if scanned%1000 == 0 {
		s.logger.Info().Int64("files", scanned).Int("found", s.Found()).Msg("Scan progress")
	}
}

// Found returns the number of unique identifiers recorded so far.
func (s *scanner) Found() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// run walks every root and scans files with a bounded worker pool.
func (s *scanner) run(roots []string) error {
	paths := make(chan string, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				s.scanFile(path)
			}
		}()
	}

	start := time.Now()
	var walkErr error
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Unreadable entries are skipped, not fatal.
				return nil
			}
			if !d.IsDir() {
				paths <- path
			}
			return nil
		})
		if err != nil && walkErr == nil {
			walkErr = fmt.Errorf("walk %s: %w", root, err)
		}
	}
	close(paths)
	wg.Wait()

	s.logger.Info().
		Int64("files", s.filesScanned).
		Int64("skipped", s.filesSkipped).
		Int("found", s.Found()).
		Dur("elapsed", time.Since(start)).
		Msg("Scan complete")

	// Close in every case so collected identifiers are flushed even when
	// a walk failed part way.
	if err := s.output.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	return walkErr
}

func main() {
	var (
		outputPath string
		workers    int
		logLevel   string
	)
	flag.StringVar(&outputPath, "o", "user_ids.txt", "output file for found identifiers")
	flag.StringVar(&outputPath, "output", "user_ids.txt", "output file for found identifiers")
	flag.IntVar(&workers, "w", 4, "number of concurrent scan workers")
	flag.IntVar(&workers, "workers", 4, "number of concurrent scan workers")
	flag.StringVar(&logLevel, "log-level", "info", "log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <directory> [directory...]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(logLevel),
		Pretty: true,
		Output: os.Stderr,
	})

	roots := flag.Args()
	if len(roots) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	s, err := newScanner(outputPath, workers)
	if err != nil {
		log.Error().Err(err).Msg("Scan failed")
		os.Exit(1)
	}
	if err := s.run(roots); err != nil {
		log.Error().Err(err).Msg("Scan failed")
		os.Exit(1)
	}
}
