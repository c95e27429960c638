/*
 * plcsim - Scan engine: the cyclic executive.
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

// Package scanengine implements the cyclic executive: begin_scan, hooks,
// module execution, WAL discard-on-error, apply_wal, end_scan.
package scanengine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/plcsim/internal/devmem"
	"github.com/rcornwell/plcsim/internal/ladder"
	"github.com/rcornwell/plcsim/internal/plcblocks"
	"github.com/rcornwell/plcsim/internal/statestore"
)

// Mode selects how the engine paces scans.
type Mode string

const (
	ModeReal Mode = "real"
	ModeStep Mode = "step"
)

// ModuleErrorPolicy controls what happens when a module's Execute fails.
type ModuleErrorPolicy string

const (
	Continue ModuleErrorPolicy = "CONTINUE"
	Stop     ModuleErrorPolicy = "STOP"
)

// WALErrorPolicy controls WAL handling after a scan that failed.
type WALErrorPolicy string

const (
	DiscardWALForScan WALErrorPolicy = "DISCARD_WAL_FOR_SCAN"
	KeepWAL           WALErrorPolicy = "KEEP"
)

// Outcome reports what happened to a module during one scan.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// Hook observes scan and module boundaries.
type Hook interface {
	OnScanBegin(scanID int64, deltaMs int64)
	BeforeModule(ctx *ladder.Context, m ladder.Module)
	AfterModule(ctx *ladder.Context, m ladder.Module, outcome Outcome)
	OnScanEnd(scanID int64)
}

// Config configures the Engine's scan cycle.
type Config struct {
	Mode            Mode
	PeriodMs        int64
	OnModuleError   ModuleErrorPolicy
	OnScanErrorWAL  WALErrorPolicy
}

// Engine is the cyclic executive running a Registry's modules against
// Device Memory once per scan.
type Engine struct {
	cfg      Config
	mem      *devmem.Memory
	state    *statestore.Store
	plc      *plcblocks.Blocks
	registry *ladder.Registry
	hooks    []Hook

	mu        sync.Mutex
	scanID    int64
	lastScan  time.Time
	wg        sync.WaitGroup
	done      chan struct{}
}

// New builds an Engine. delta, when the engine advances in real mode, is
// supplied by the wall clock; in step mode it is cfg.PeriodMs, floored to
// 1 ms.
func New(cfg Config, mem *devmem.Memory, registry *ladder.Registry) *Engine {
	state := statestore.New()
	e := &Engine{
		cfg:      cfg,
		mem:      mem,
		state:    state,
		registry: registry,
		done:     make(chan struct{}),
	}
	e.plc = plcblocks.New(state, func() int64 { return mem.CurrentDeltaMs() })
	return e
}

// AddHook registers a Hook fired at scan and module boundaries.
func (e *Engine) AddHook(h Hook) {
	e.hooks = append(e.hooks, h)
}

// State exposes the shared state store (for tests/diagnostics).
func (e *Engine) State() *statestore.Store { return e.state }

// ScanID returns the last scan id run.
func (e *Engine) ScanID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanID
}

func (e *Engine) computeDelta() int64 {
	if e.cfg.Mode == ModeStep {
		if e.cfg.PeriodMs < 1 {
			return 1
		}
		return e.cfg.PeriodMs
	}
	now := time.Now()
	if e.lastScan.IsZero() {
		e.lastScan = now
		return 1
	}
	elapsed := now.Sub(e.lastScan).Milliseconds()
	e.lastScan = now
	if elapsed < 1 {
		elapsed = 1
	}
	return elapsed
}

// Step runs exactly one scan cycle: begin_scan, hooks, modules in
// registration order, WAL discard on failure, apply_wal, end_scan.
func (e *Engine) Step() error {
	e.mu.Lock()
	e.scanID++
	scanID := e.scanID
	deltaMs := e.computeDelta()
	e.mu.Unlock()

	e.mem.BeginScan(scanID, deltaMs)

	for _, h := range e.hooks {
		h.OnScanBegin(scanID, deltaMs)
	}

	ctx := &ladder.Context{Mem: e.mem, State: e.state, PLC: e.plc, ScanID: scanID, DeltaMs: deltaMs}

	scanFailed := false
	var stopErr error

	for _, m := range e.registry.Modules() {
		for _, h := range e.hooks {
			h.BeforeModule(ctx, m)
		}

		err := m.Execute(ctx)
		outcome := OutcomeOK
		if err != nil {
			outcome = OutcomeError
			scanFailed = true
			slog.Error("ladder module failed", "module", m.Name(), "scan", scanID, "err", err)
			if e.cfg.OnModuleError == Stop {
				stopErr = fmt.Errorf("module %q failed: %w", m.Name(), err)
			}
		}

		for _, h := range e.hooks {
			h.AfterModule(ctx, m, outcome)
		}

		if stopErr != nil {
			return stopErr
		}
	}

	if scanFailed && e.cfg.OnScanErrorWAL == DiscardWALForScan {
		e.mem.DiscardLadderWAL(scanID)
	}

	e.mem.ApplyWAL("scan_end", scanID)

	for _, h := range e.hooks {
		h.OnScanEnd(scanID)
	}

	e.mem.EndScan(scanID)

	return nil
}

// RunForever loops Step until Stop is called, sleeping the remainder of
// PeriodMs between scans in real mode (never a negative duration, and
// never accumulating drift in scan ids).
func (e *Engine) RunForever() error {
	e.wg.Add(1)
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return nil
		default:
		}

		start := time.Now()
		if err := e.Step(); err != nil {
			return err
		}

		if e.cfg.Mode == ModeReal && e.cfg.PeriodMs > 0 {
			remaining := time.Duration(e.cfg.PeriodMs)*time.Millisecond - time.Since(start)
			if remaining < 0 {
				remaining = 0
			}
			select {
			case <-e.done:
				return nil
			case <-time.After(remaining):
			}
		}
	}
}

// Stop signals RunForever to exit after its current scan completes and
// waits for it to return.
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()
}
