/*
 * plcsim - PLC function block library: timers, counters, edge detectors.
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

// Package plcblocks implements the standard PLC function blocks: edge
// detectors, timers (TON/TOF/TP), and counters (CTU/CTD). Every block is
// keyed by a caller-supplied id that namespaces its state in a state
// store, and accumulates elapsed time across scans via a DeltaProvider.
package plcblocks

import "github.com/rcornwell/plcsim/internal/statestore"

// DeltaProvider returns the elapsed ms since the previous scan.
type DeltaProvider func() int64

// Blocks evaluates PLC function blocks against a shared state store.
type Blocks struct {
	state *statestore.Store
	delta DeltaProvider
}

func New(state *statestore.Store, delta DeltaProvider) *Blocks {
	return &Blocks{state: state, delta: delta}
}

// EdgeRise returns true iff the previous stored value was false and signal
// is true, then stores signal.
func (b *Blocks) EdgeRise(id string, signal bool) bool {
	key := "edge:rise:" + id
	prev := b.state.GetBool(key)
	b.state.Set(key, signal)
	return !prev && signal
}

// EdgeFall returns true iff the previous stored value was true and signal
// is false, then stores signal.
func (b *Blocks) EdgeFall(id string, signal bool) bool {
	key := "edge:fall:" + id
	prev := b.state.GetBool(key)
	b.state.Set(key, signal)
	return prev && !signal
}

// TON is an on-delay timer: while in is true, elapsed accumulates; output
// becomes true once elapsed >= ptMs. Resets to false/0 when in goes false.
func (b *Blocks) TON(id string, in bool, ptMs int64) bool {
	etKey := "ton:" + id + ":et"
	if !in {
		b.state.Set(etKey, int64(0))
		return false
	}
	et, _ := b.state.Get(etKey)
	elapsed, _ := et.(int64)
	elapsed += b.delta()
	b.state.Set(etKey, elapsed)
	return elapsed >= ptMs
}

// TOF is an off-delay timer: while in is true, output is true and elapsed
// is held at 0. When in goes false, elapsed accumulates until ptMs, then
// output drops to false.
func (b *Blocks) TOF(id string, in bool, ptMs int64) bool {
	etKey := "tof:" + id + ":et"
	if in {
		b.state.Set(etKey, int64(0))
		return true
	}
	et, _ := b.state.Get(etKey)
	elapsed, _ := et.(int64)
	elapsed += b.delta()
	b.state.Set(etKey, elapsed)
	return elapsed < ptMs
}

// TP is a one-shot pulse timer: a rising edge of in (while not already
// running) starts the pulse; while running, elapsed accumulates until
// ptMs, at which point the pulse ends. Rising edges during an active pulse
// are absorbed.
func (b *Blocks) TP(id string, in bool, ptMs int64) bool {
	risingKey := "tp:" + id + ":edge"
	etKey := "tp:" + id + ":et"
	runKey := "tp:" + id + ":running"

	rise := b.edgeRiseRaw(risingKey, in)
	running := b.state.GetBool(runKey)

	if rise && !running {
		running = true
		b.state.Set(etKey, int64(0))
	}

	if running {
		et, _ := b.state.Get(etKey)
		elapsed, _ := et.(int64)
		elapsed += b.delta()
		b.state.Set(etKey, elapsed)
		if elapsed >= ptMs {
			running = false
		}
	}

	b.state.Set(runKey, running)
	return running
}

// CTU is an up counter: on rising edge of in, cv increases by one; reset
// forces cv to 0. q is true once cv >= pv. State persists across scans.
func (b *Blocks) CTU(id string, in bool, pv int, reset bool) (q bool, cv int) {
	edgeKey := "ctu:" + id + ":edge"
	cvKey := "ctu:" + id + ":cv"

	if reset {
		b.state.Set(cvKey, 0)
	}
	rise := b.edgeRiseRaw(edgeKey, in)
	cv = b.state.GetInt(cvKey)
	if rise {
		cv++
		b.state.Set(cvKey, cv)
	}
	return cv >= pv, cv
}

// CTD is a down counter: cv starts at pv (first call or on reset); on
// rising edge of in, cv decreases by one. q is true once cv <= 0.
func (b *Blocks) CTD(id string, in bool, pv int, reset bool) (q bool, cv int) {
	edgeKey := "ctd:" + id + ":edge"
	cvKey := "ctd:" + id + ":cv"
	initKey := "ctd:" + id + ":init"

	initialized := b.state.GetBool(initKey)
	if reset || !initialized {
		b.state.Set(cvKey, pv)
		b.state.Set(initKey, true)
	}
	rise := b.edgeRiseRaw(edgeKey, in)
	cv = b.state.GetInt(cvKey)
	if rise {
		cv--
		b.state.Set(cvKey, cv)
	}
	return cv <= 0, cv
}

// edgeRiseRaw is the internal rising-edge detector used by TP/CTU/CTD,
// keyed separately from any user-visible edge:rise:<id> so that, e.g., a
// user's CTU("X") cannot alias a user's EdgeRise("X").
func (b *Blocks) edgeRiseRaw(key string, signal bool) bool {
	prev := b.state.GetBool(key)
	b.state.Set(key, signal)
	return !prev && signal
}
