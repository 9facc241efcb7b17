package cache

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Ledger is the durable set of identifiers the service confirmed absent,
// one per line in a plain text file (404.txt). The file is loaded fully
// at open and appended to as new absences are confirmed. The file itself
// is not deduplicated; the in-memory set is, and it is what gates both
// lookups and appends within a run. The file is assumed to be owned by a
// single running instance.
type Ledger struct {
	mu   sync.Mutex
	path string
	seen map[string]struct{}
}

// OpenLedger loads the ledger file. A missing file is an empty ledger,
// not an error.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		seen: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			l.seen[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	return l, nil
}

// Contains reports whether the identifier is ledgered.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

// Append records the identifier as confirmed absent: one line appended
// to the file, flushed immediately, at most once per identifier per
// process lifetime.
func (l *Ledger) Append(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		CacheErrors.WithLabelValues("ledger_append").Inc()
		return fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, id); err != nil {
		CacheErrors.WithLabelValues("ledger_append").Inc()
		return fmt.Errorf("append ledger %s: %w", l.path, err)
	}

	l.seen[id] = struct{}{}
	return nil
}

// Len returns the number of ledgered identifiers.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
