/*
 * plcsim - Sample ladder module: a blinking coil.
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

// Package samples holds a single demonstration ladder module, which
// cmd/plcsim builds for the configured module kind "blink"; the sample
// module set proper is out of scope (external collaborator, supplied by
// configuration).
package samples

import (
	"github.com/rcornwell/plcsim/internal/ladder"
	"github.com/rcornwell/plcsim/internal/memmodel"
)

// Blink toggles a single bit on dev/addr every periodScans scans.
type Blink struct {
	Dev         string
	Addr        uint32
	PeriodScans int64
	loads       int
}

func (b *Blink) Name() string { return "blink" }

func (b *Blink) OnLoad() error {
	b.loads++
	return nil
}

func (b *Blink) Execute(ctx *ladder.Context) error {
	period := b.PeriodScans
	if period < 1 {
		period = 1
	}
	next := uint32(0)
	if (ctx.ScanID/period)%2 == 1 {
		next = 1
	}
	return ctx.Mem.Write(b.Dev, memmodel.Bit, b.Addr, []uint32{next}, "ladder:blink")
}
