package coreengine

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/oarkflow/coreengine/errs"
)

// Manifest is the append-only log of SSTable lifecycle events. Each line is
// either "ADD <id> <level>\n" (current format, extended with an explicit
// level tag per the recovery open question) or the legacy "ADD <id>\n"
// (level unknown; recovery falls back to directory search). "REMOVE <id>\n"
// retires an id regardless of format.
type Manifest struct {
	mu   sync.Mutex
	file *os.File
}

// OpenManifest creates the manifest file at path if absent, for append.
func OpenManifest(path string) (*Manifest, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errs.IoErrorf("OpenManifest", err)
	}
	return &Manifest{file: f}, nil
}

// AddSSTable appends "ADD <id> <level>\n" and flushes before returning.
func (m *Manifest) AddSSTable(id uint64, level int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	line := fmt.Sprintf("ADD %d %d\n", id, level)
	if _, err := m.file.WriteString(line); err != nil {
		return errs.IoErrorf("Manifest.AddSSTable", err)
	}
	if err := m.file.Sync(); err != nil {
		return errs.IoErrorf("Manifest.AddSSTable", err)
	}
	return nil
}

// RemoveSSTables appends one "REMOVE <id>\n" per id, flushing once after
// all lines are written.
func (m *Manifest) RemoveSSTables(ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "REMOVE %d\n", id)
	}
	if _, err := m.file.WriteString(b.String()); err != nil {
		return errs.IoErrorf("Manifest.RemoveSSTables", err)
	}
	if err := m.file.Sync(); err != nil {
		return errs.IoErrorf("Manifest.RemoveSSTables", err)
	}
	return nil
}

// LiveSet replays all records and returns the currently-live ids (ADDed and
// not subsequently REMOVEd), sorted ascending, alongside the level recorded
// for each (-1 if the record predates the level tag).
func (m *Manifest) LiveSet() ([]uint64, map[uint64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.file.Seek(0, 0); err != nil {
		return nil, nil, errs.IoErrorf("Manifest.LiveSet", err)
	}

	live := make(map[uint64]bool)
	levels := make(map[uint64]int)

	scanner := bufio.NewScanner(m.file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, nil, errs.Corruptf("Manifest.LiveSet", "malformed line %q", line)
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, nil, errs.Corruptf("Manifest.LiveSet", "invalid id in line %q", line)
		}
		switch fields[0] {
		case "ADD":
			live[id] = true
			if len(fields) >= 3 {
				lvl, err := strconv.Atoi(fields[2])
				if err != nil {
					return nil, nil, errs.Corruptf("Manifest.LiveSet", "invalid level in line %q", line)
				}
				levels[id] = lvl
			} else {
				levels[id] = -1
			}
		case "REMOVE":
			delete(live, id)
			delete(levels, id)
		default:
			return nil, nil, errs.Corruptf("Manifest.LiveSet", "unknown command token %q", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errs.IoErrorf("Manifest.LiveSet", err)
	}

	ids := make([]uint64, 0, len(live))
	for id := range live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, levels, nil
}

func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}
