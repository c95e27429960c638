/*
 * plcsim - Ladder module capability interface and registry.
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

// Package ladder defines the capability set a ladder module must satisfy
// and a simple ordered registry the Scan Engine walks each scan.
package ladder

import (
	"github.com/rcornwell/plcsim/internal/devmem"
	"github.com/rcornwell/plcsim/internal/plcblocks"
	"github.com/rcornwell/plcsim/internal/statestore"
)

// Context is what a module's Execute sees: the device memory router, the
// shared state store, the function block library, and the current scan
// identifiers.
type Context struct {
	Mem     *devmem.Memory
	State   *statestore.Store
	PLC     *plcblocks.Blocks
	ScanID  int64
	DeltaMs int64
}

// Module is the minimum capability a ladder module must satisfy.
type Module interface {
	Name() string
	Execute(ctx *Context) error
}

// Loader is an optional capability: modules implementing it are notified
// once, before their first Execute.
type Loader interface {
	OnLoad() error
}

// Unloader is an optional capability: modules implementing it are notified
// on Scan Engine shutdown.
type Unloader interface {
	OnUnload()
}

// Registry holds the ordered list of modules the Scan Engine executes each
// scan.
type Registry struct {
	modules []Module
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends module to the registry, calling OnLoad if it implements
// Loader.
func (r *Registry) Register(m Module) error {
	if l, ok := m.(Loader); ok {
		if err := l.OnLoad(); err != nil {
			return err
		}
	}
	r.modules = append(r.modules, m)
	return nil
}

// Modules returns the registered modules in registration order.
func (r *Registry) Modules() []Module {
	return r.modules
}

// Unload calls OnUnload on every module implementing Unloader, in
// registration order.
func (r *Registry) Unload() {
	for _, m := range r.modules {
		if u, ok := m.(Unloader); ok {
			u.OnUnload()
		}
	}
}
