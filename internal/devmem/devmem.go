/*
 * plcsim - Device memory: the central read/write router.
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

// Package devmem implements Device Memory: the addressable store keyed by
// (device, space, address), routing reads between the live store and a
// frozen I/O image and writes between immediate application and a
// write-ahead log, per each device's scan-consistency rule.
package devmem

import (
	"strings"
	"sync"
	"time"

	"github.com/rcornwell/plcsim/internal/lockmgr"
	"github.com/rcornwell/plcsim/internal/memmodel"
	"github.com/rcornwell/plcsim/internal/wal"
)

// cellKey addresses one storage cell.
type cellKey struct {
	dev   string
	space memmodel.Space
	addr  uint32
}

// Options configures a Memory instance.
type Options struct {
	LockTimeout time.Duration
	// ReadYourWrites is reserved: plumbed through but not observably
	// consulted by Read/Write, per spec's open question.
	ReadYourWrites bool
	ApplyPhase     string
}

// Memory is Device Memory: the central read/write router over the live
// store and the frozen I/O image.
type Memory struct {
	profile *memmodel.Profile
	locks   *lockmgr.Manager
	wal     *wal.Store
	opts    Options

	mu    sync.RWMutex // guards cs and stats
	cs    map[cellKey]uint32

	scanMu    sync.Mutex // serializes begin_scan image construction
	image     map[cellKey]uint32
	scanID    int64
	deltaMs   int64

	stats map[string]*deviceStats
}

type deviceStats struct {
	reads  int64
	writes int64
}

// New builds a Memory over profile, backed by wal for deferred writes.
func New(profile *memmodel.Profile, w *wal.Store, opts Options) *Memory {
	if opts.ApplyPhase == "" {
		opts.ApplyPhase = "scan_end"
	}
	return &Memory{
		profile: profile,
		locks:   lockmgr.New(),
		wal:     w,
		opts:    opts,
		cs:      map[cellKey]uint32{},
		image:   map[cellKey]uint32{},
		stats:   map[string]*deviceStats{},
	}
}

func isLadderSource(source string) bool {
	return strings.HasPrefix(source, "ladder")
}

func (m *Memory) bumpStats(dev string, reads, writes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[strings.ToUpper(dev)]
	if !ok {
		st = &deviceStats{}
		m.stats[strings.ToUpper(dev)] = st
	}
	st.reads += reads
	st.writes += writes
}

// Stats returns read/write counters for dev, for adapter diagnostics.
func (m *Memory) Stats(dev string) (reads, writes int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stats[strings.ToUpper(dev)]
	if !ok {
		return 0, 0
	}
	return st.reads, st.writes
}

// Read validates the request, chooses the live store or the frozen I/O
// image depending on source and the device's scan-consistency rule, and
// returns count values starting at addr (default_value for unwritten
// cells).
func (m *Memory) Read(dev string, space memmodel.Space, addr uint32, count int, source string) ([]uint32, error) {
	model, err := m.profile.Lookup(dev)
	if err != nil {
		return nil, err
	}
	if err := model.Validate(space, addr, count); err != nil {
		return nil, err
	}

	fromImage := isLadderSource(source) && model.Rule == memmodel.IOImage

	m.mu.RLock()
	out := make([]uint32, count)
	for i := 0; i < count; i++ {
		key := cellKey{dev: strings.ToUpper(dev), space: space, addr: addr + uint32(i)}
		var v uint32
		var ok bool
		if fromImage {
			v, ok = m.image[key]
		} else {
			v, ok = m.cs[key]
		}
		if !ok {
			v = model.DefaultValue
		}
		out[i] = v
	}
	m.mu.RUnlock()

	m.bumpStats(dev, 1, 0)
	return out, nil
}

// Write validates the request and dispatches on the device's
// scan-consistency rule: IMMEDIATE updates the live store under the
// device's lock; NEXT_SCAN and IO_IMAGE append a WAL entry targeted at the
// next scan.
func (m *Memory) Write(dev string, space memmodel.Space, addr uint32, values []uint32, source string) error {
	model, err := m.profile.Lookup(dev)
	if err != nil {
		return err
	}
	if err := model.Validate(space, addr, len(values)); err != nil {
		return err
	}
	if err := model.ValidateWritable(); err != nil {
		return err
	}
	for _, v := range values {
		if err := model.ValidateValue(space, v); err != nil {
			return err
		}
	}

	token := lockmgr.NewToken()
	if err := m.locks.Acquire(dev, token, m.opts.LockTimeout); err != nil {
		return err
	}
	defer m.locks.Release(dev, token)

	switch model.Rule {
	case memmodel.Immediate:
		m.mu.Lock()
		for i, v := range values {
			key := cellKey{dev: strings.ToUpper(dev), space: space, addr: addr + uint32(i)}
			m.cs[key] = v
		}
		m.mu.Unlock()
	default: // NextScan, IOImage
		scanID := m.currentScanID()
		m.wal.Append(wal.Entry{
			ScanID:       scanID,
			TargetScanID: scanID + 1,
			Source:       source,
			Dev:          strings.ToUpper(dev),
			Space:        space,
			Addr:         addr,
			Values:       append([]uint32(nil), values...),
			Policy:       model.Rule,
			Result:       "pending",
		})
	}
	m.bumpStats(dev, 0, 1)
	return nil
}

func (m *Memory) currentScanID() int64 {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	return m.scanID
}

// BeginScan records the scan id/delta and takes a fresh snapshot of every
// IO_IMAGE device's live store, under the internal scan lock, so the image
// can never be torn by a concurrent begin_scan.
func (m *Memory) BeginScan(scanID int64, deltaMs int64) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	m.scanID = scanID
	m.deltaMs = deltaMs

	m.mu.Lock()
	defer m.mu.Unlock()

	image := map[cellKey]uint32{}
	for _, model := range m.profile.Devices() {
		if model.Rule != memmodel.IOImage {
			continue
		}
		dev := strings.ToUpper(model.Suffix)
		for key, v := range m.cs {
			if key.dev == dev {
				image[key] = v
			}
		}
	}
	m.image = image
}

// EndScan records the completed scan id.
func (m *Memory) EndScan(scanID int64) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	m.scanID = scanID
}

// ApplyWAL applies every WAL entry ready at scanID to the live store, in
// seq order, then removes them. A no-op unless phase matches the
// configured apply phase.
func (m *Memory) ApplyWAL(phase string, scanID int64) {
	if phase != m.opts.ApplyPhase {
		return
	}
	ready := m.wal.IterReady(scanID)

	m.mu.Lock()
	for i := range ready {
		e := &ready[i]
		for j, v := range e.Values {
			key := cellKey{dev: e.Dev, space: e.Space, addr: e.Addr + uint32(j)}
			m.cs[key] = v
		}
	}
	m.mu.Unlock()

	m.wal.RemoveApplied(scanID)
}

// DiscardLadderWAL drops every pending WAL entry originating from a ladder
// module for scanID, leaving adapter-originated entries (e.g. direct writes
// from a connected client) untouched.
func (m *Memory) DiscardLadderWAL(scanID int64) {
	m.wal.DiscardScan(scanID, "ladder:")
}

// CurrentScanID returns the last scan id recorded by BeginScan/EndScan, for
// diagnostics.
func (m *Memory) CurrentScanID() int64 {
	return m.currentScanID()
}

// CurrentDeltaMs returns the elapsed time recorded by the most recent
// BeginScan, for diagnostics.
func (m *Memory) CurrentDeltaMs() int64 {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	return m.deltaMs
}
