// Package sink persists lookup results to the three durable destinations:
// the negative ledger, per-identifier snapshot files, and the delimited
// report. Each write is complete and flushed on its own, so process
// termination leaves every file valid, if not complete.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/just-h/yoinker-detector/pkg/cache"
)

var reportHeader = []string{"UserId", "UserName", "Year", "Reason"}

// Sink fans one (identifier, result) pair out to the ledger, the
// snapshot store, and the CSV report. All three destinations share an
// unbuffered append-on-write discipline and are guarded by one lock.
type Sink struct {
	mu         sync.Mutex
	ledger     *cache.Ledger
	snapshots  *cache.SnapshotStore
	reportPath string
	saveEmpty  bool
	headerDone bool
	logger     zerolog.Logger
}

// New creates a sink. The report file is created (with its header) on
// the first row of the run, so a run that resolves nothing writes no
// report. With saveEmpty, NotFound and Unresolved identifiers also get
// a report row and a placeholder snapshot. The ledger and snapshot store
// may be nil for a volatile run; those destinations are then skipped and
// only the report is written.
func New(ledger *cache.Ledger, snapshots *cache.SnapshotStore, reportPath string, saveEmpty bool) *Sink {
	return &Sink{
		ledger:     ledger,
		snapshots:  snapshots,
		reportPath: reportPath,
		saveEmpty:  saveEmpty,
		logger:     log.With().Str("component", "sink").Logger(),
	}
}

// Persist writes one result to every destination it belongs to. Each
// destination is independently idempotent; a failure in one is logged
// and does not block the others.
func (s *Sink) Persist(id string, res cache.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error

	if res.Outcome == cache.OutcomeNotFound && s.ledger != nil {
		if err := s.ledger.Append(id); err != nil {
			s.logger.Error().Err(err).Str("user_id", id).Msg("Ledger append failed")
			firstErr = err
		}
	}

	switch {
	case s.snapshots == nil:
	case res.Found():
		if err := s.snapshots.Write(id, res.Record); err != nil {
			s.logger.Error().Err(err).Str("user_id", id).Msg("Snapshot write failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	case s.saveEmpty:
		placeholder := &cache.Record{UserID: id, Status: "not_found"}
		if err := s.snapshots.Write(id, placeholder); err != nil {
			s.logger.Error().Err(err).Str("user_id", id).Msg("Placeholder snapshot write failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if err := s.appendReport(id, res); err != nil {
		s.logger.Error().Err(err).Str("user_id", id).Msg("Report append failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// appendReport writes one report row. Caller must hold the lock.
func (s *Sink) appendReport(id string, res cache.Result) error {
	var row []string
	switch {
	case res.Found():
		userID := res.Record.UserID
		if userID == "" {
			userID = id
		}
		row = []string{userID, res.Record.UserName, res.Record.Year, res.Record.Reason}
	case s.saveEmpty:
		row = []string{id, "", "", "Not found"}
	default:
		return nil
	}

	if !s.headerDone {
		if err := s.writeRow(reportHeader, true); err != nil {
			return fmt.Errorf("write report header: %w", err)
		}
		s.headerDone = true
	}

	if err := s.writeRow(row, false); err != nil {
		return fmt.Errorf("append report row: %w", err)
	}
	return nil
}

// writeRow appends (or truncates, for the header) one semicolon-delimited
// row and flushes it.
func (s *Sink) writeRow(row []string, truncate bool) error {
	flags := os.O_APPEND | os.O_CREATE | os.O_WRONLY
	if truncate {
		flags = os.O_TRUNC | os.O_CREATE | os.O_WRONLY
	}

	f, err := os.OpenFile(s.reportPath, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
