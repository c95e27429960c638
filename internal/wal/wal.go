/*
 * plcsim - Write-ahead log of deferred device writes.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package wal implements the bounded FIFO write-ahead log of deferred
// device writes: append, ready-scan iteration, and selective discard.
package wal

import (
	"strings"
	"sync"
	"time"

	"github.com/rcornwell/plcsim/internal/memmodel"
)

// Entry is one deferred write, owned by the Store.
type Entry struct {
	Seq          int64
	TimeMs       int64
	ScanID       int64
	TargetScanID int64
	Source       string
	Dev          string
	Space        memmodel.Space
	Addr         uint32
	Values       []uint32
	Policy       memmodel.Rule
	Result       string
}

// Store is a ring-buffer-backed, append-ordered FIFO of Entry.
type Store struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
	nextSeq    int64
	dropped    int64
}

// New creates a Store truncating from the head once more than maxEntries
// are held.
func New(maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &Store{maxEntries: maxEntries}
}

// Append assigns the next seq to entry, stamps TimeMs if unset, and appends
// it, truncating the oldest entries if the store has grown past its limit.
func (s *Store) Append(entry Entry) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	entry.Seq = s.nextSeq
	if entry.TimeMs == 0 {
		entry.TimeMs = time.Now().UnixMilli()
	}
	s.entries = append(s.entries, entry)

	if over := len(s.entries) - s.maxEntries; over > 0 {
		s.dropped += int64(over)
		s.entries = s.entries[over:]
	}
	return entry.Seq
}

// IterReady returns every entry with TargetScanID <= scanID, in seq order.
func (s *Store) IterReady(scanID int64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.TargetScanID <= scanID {
			out = append(out, e)
		}
	}
	return out
}

// DiscardScan removes every entry with ScanID == scanID and Source starting
// with sourcePrefix ("ladder:" by default); other-source entries of that
// scan are preserved.
func (s *Store) DiscardScan(scanID int64, sourcePrefix string) {
	if sourcePrefix == "" {
		sourcePrefix = "ladder:"
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if e.ScanID == scanID && strings.HasPrefix(e.Source, sourcePrefix) {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
}

// RemoveApplied removes every entry with TargetScanID <= scanID.
func (s *Store) RemoveApplied(scanID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0:0]
	for _, e := range s.entries {
		if e.TargetScanID > scanID {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

// Size returns the number of entries currently held.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Dropped returns the running count of entries truncated by ring-buffer
// overflow, for adapter diagnostics.
func (s *Store) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
