/*
 * plcsim - Device memory model: spaces, ranges, value-width rules.
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

// Package memmodel implements the MemoryModel and DeviceProfile of the PLC
// simulator: per-device-class validation of spaces, address ranges, value
// widths, and writability.
package memmodel

import (
	"strings"

	"github.com/rcornwell/plcsim/internal/plcerr"
)

// Space is an address subspace within a device.
type Space string

const (
	Bit   Space = "bit"
	Word  Space = "word"
	Dword Space = "dword"
)

// Rule is a per-device scan-consistency policy.
type Rule string

const (
	Immediate Rule = "IMMEDIATE"
	NextScan  Rule = "NEXT_SCAN"
	IOImage   Rule = "IO_IMAGE"
)

// Range is an inclusive [Min, Max] address range for one space.
type Range struct {
	Min uint32
	Max uint32
}

// Model is an immutable per-device-class memory model.
type Model struct {
	Suffix       string
	Spaces       map[Space]Range
	Rule         Rule
	DefaultValue uint32
	Writable     bool
}

// maxValue returns the inclusive upper bound of values storable in space.
func maxValue(space Space) uint32 {
	switch space {
	case Bit:
		return 1
	case Word:
		return 1<<16 - 1
	case Dword:
		return 1<<32 - 1
	default:
		return 0
	}
}

// Validate checks that space is supported by the model and that
// [addr, addr+count-1] is within its configured range.
func (m *Model) Validate(space Space, addr uint32, count int) error {
	rng, ok := m.Spaces[space]
	if !ok {
		return plcerr.TypeMismatchErr(m.Suffix, string(space))
	}
	if count < 1 {
		return plcerr.OutOfRangeErr("count must be >= 1")
	}
	last := addr + uint32(count) - 1
	if last < addr { // overflow
		return plcerr.OutOfRangeErr("address span overflows")
	}
	if addr < rng.Min || last > rng.Max {
		return plcerr.OutOfRangeErr("address span outside configured range")
	}
	return nil
}

// ValidateWritable fails READONLY if the model is not writable.
func (m *Model) ValidateWritable() error {
	if !m.Writable {
		return plcerr.ReadonlyErr(m.Suffix)
	}
	return nil
}

// ValidateValue checks that value fits the value-width rule for space.
func (m *Model) ValidateValue(space Space, value uint32) error {
	if value > maxValue(space) {
		return plcerr.OutOfRangeErr("value outside type width for space " + string(space))
	}
	return nil
}

// Profile is a registry mapping device suffix to Model.
type Profile struct {
	Name        string
	Version     string
	Description string
	devices     map[string]*Model
}

// NewProfile builds a Profile from a set of models.
func NewProfile(name, version, description string, models []*Model) *Profile {
	p := &Profile{Name: name, Version: version, Description: description, devices: map[string]*Model{}}
	for _, m := range models {
		p.devices[strings.ToUpper(m.Suffix)] = m
	}
	return p
}

// Lookup resolves a device suffix to its Model, failing UNKNOWN_DEVICE.
func (p *Profile) Lookup(dev string) (*Model, error) {
	m, ok := p.devices[strings.ToUpper(dev)]
	if !ok {
		return nil, plcerr.UnknownDeviceErr(dev)
	}
	return m, nil
}

// Devices returns every model registered in the profile.
func (p *Profile) Devices() []*Model {
	out := make([]*Model, 0, len(p.devices))
	for _, m := range p.devices {
		out = append(out, m)
	}
	return out
}
