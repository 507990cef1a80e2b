// Package recording maintains the call-recording catalog: it ranks the
// recordings directory by recency, persists the listing the dispatcher
// polls, and queues files beyond the retain count for the background
// reaper.
package recording

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dispatchd/dispatchd/internal/listing"
)

// ErrBusy is returned by Refresh while a queued deletion batch is still
// draining. The previously persisted listing is left untouched; callers
// retry later.
var ErrBusy = errors.New("recording retention batch in progress")

// Entry is one parsed catalog row. Rank 0 is the most recent file.
type Entry struct {
	FileName     string `json:"file_name"`
	CallTime     string `json:"call_time"`
	Participants string `json:"participants"`
	Rank         int    `json:"rank"`
}

// Catalog owns the recordings directory. Refresh and DeleteNamed are called
// from request handling; the reaper goroutine is the only other contender,
// and it touches only the deletion queue and the reaped counter.
type Catalog struct {
	dir    string
	retain int
	store  *listing.Store
	queue  deletionQueue

	mu      sync.Mutex
	entries []Entry
	reaped  int64
}

// NewCatalog creates a catalog over dir, creating the directory if needed.
func NewCatalog(dir string, retain int, store *listing.Store) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating recordings directory: %w", err)
	}
	return &Catalog{dir: dir, retain: retain, store: store}, nil
}

type rankedFile struct {
	name    string
	modTime time.Time
}

// Refresh re-enumerates the recordings directory, persists the listing of
// the retain-count most recent files, and queues the rest for deletion.
// While a previous batch is draining it returns ErrBusy and writes nothing.
func (c *Catalog) Refresh() error {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("enumerating recordings: %w", err)
	}

	files := make([]rankedFile, 0, len(dirents))
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			return fmt.Errorf("reading recording metadata: %w", err)
		}
		files = append(files, rankedFile{name: de.Name(), modTime: info.ModTime()})
	}
	// Most recent first; ties keep enumeration order.
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	var kept []Entry
	var rows []listing.RecordingRow
	var excess []string
	for rank, f := range files {
		if rank >= c.retain {
			excess = append(excess, f.name)
			continue
		}
		// A malformed name still occupies its rank slot; it just has no
		// parsed detail to list.
		callTime, participants, ok := parseName(f.name)
		if !ok {
			slog.Warn("recording catalog: unparseable filename", "file", f.name)
			continue
		}
		kept = append(kept, Entry{
			FileName:     f.name,
			CallTime:     callTime,
			Participants: participants,
			Rank:         rank,
		})
		rows = append(rows, listing.RecordingRow{
			DateTime:   callTime,
			Extensions: participants,
			FilePath:   f.name,
		})
	}

	if !c.queue.Begin(excess) {
		return ErrBusy
	}

	if len(files) == 0 {
		rows = []listing.RecordingRow{{DateTime: listing.NA, Extensions: listing.NA, FilePath: listing.NA}}
	}
	if err := c.store.WriteRecordings(rows); err != nil {
		return fmt.Errorf("persisting recording catalog: %w", err)
	}

	c.mu.Lock()
	c.entries = kept
	c.mu.Unlock()

	slog.Info("recording catalog refreshed",
		"files", len(files),
		"listed", len(kept),
		"queued", len(excess),
	)
	return nil
}

// DeleteNamed removes a single recording synchronously, outside the
// queue/busy mechanism, then rebuilds the listing. A failing rebuild is
// logged but does not undo a successful delete.
func (c *Catalog) DeleteNamed(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid recording name %q", name)
	}
	if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	if err := c.Refresh(); err != nil {
		slog.Warn("recording catalog: refresh after delete failed", "file", name, "error", err)
	}
	return nil
}

// Entries returns a copy of the parsed rows of the last successful refresh.
func (c *Catalog) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Size returns the number of listed entries.
func (c *Catalog) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// QueueDepth returns the number of filenames awaiting the reaper.
func (c *Catalog) QueueDepth() int {
	return c.queue.Depth()
}

// ReapedTotal returns the number of files the reaper has removed.
func (c *Catalog) ReapedTotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reaped
}

// parseName splits a recording filename of the form
// `{date}-{time}-{extA}-{extB}.{container}`. The date/time prefix ends at
// the fourth hyphen; the participant pair runs from there to the last dot.
// Anything else in the name is not structural.
func parseName(name string) (callTime, participants string, ok bool) {
	const (
		readDateTime = iota
		readParticipants
	)

	state := readDateTime
	hyphens := 0
	split := -1
	dot := -1
	for i := 0; i < len(name); i++ {
		switch state {
		case readDateTime:
			if name[i] == '-' {
				hyphens++
				if hyphens == 4 {
					split = i
					state = readParticipants
				}
			}
		case readParticipants:
			if name[i] == '.' {
				dot = i
			}
		}
	}
	if split <= 0 || dot <= split+1 || dot == len(name)-1 {
		return "", "", false
	}
	return name[:split], name[split+1 : dot], true
}
