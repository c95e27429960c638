/*
 * plcsim - Per-device reentrant lock manager.
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

// Package lockmgr lazily creates one reentrant lock per device suffix and
// serializes write access to a device across adapter and ladder callers.
package lockmgr

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcornwell/plcsim/internal/plcerr"
)

var tokenSeq int64

// NewToken mints a unique caller token for a single, non-reentrant
// acquire/release pair (e.g. one adapter request).
func NewToken() int64 {
	return atomic.AddInt64(&tokenSeq, 1)
}

// reentrantLock allows the same goroutine (identified by a caller-supplied
// token) to acquire it repeatedly without deadlocking itself.
type reentrantLock struct {
	mu     sync.Mutex
	owner  int64
	depth  int
	gate   chan struct{} // 1-buffered: held means gate is empty
	gateMu sync.Mutex
}

func newReentrantLock() *reentrantLock {
	l := &reentrantLock{gate: make(chan struct{}, 1)}
	l.gate <- struct{}{}
	return l
}

// acquire blocks up to timeout waiting for the lock, reentering if token
// already owns it.
func (l *reentrantLock) acquire(token int64, timeout time.Duration) bool {
	l.gateMu.Lock()
	if l.depth > 0 && l.owner == token {
		l.depth++
		l.gateMu.Unlock()
		return true
	}
	l.gateMu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-l.gate:
		l.gateMu.Lock()
		l.owner = token
		l.depth = 1
		l.gateMu.Unlock()
		return true
	case <-timer:
		return false
	}
}

// release gives up one level of ownership, returning the gate once depth
// reaches zero.
func (l *reentrantLock) release(token int64) {
	l.gateMu.Lock()
	defer l.gateMu.Unlock()
	if l.depth == 0 || l.owner != token {
		return
	}
	l.depth--
	if l.depth == 0 {
		l.gate <- struct{}{}
	}
}

// Manager holds one reentrant lock per device suffix, created lazily.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*reentrantLock
}

func New() *Manager {
	return &Manager{locks: map[string]*reentrantLock{}}
}

func (m *Manager) lockFor(dev string) *reentrantLock {
	dev = strings.ToUpper(dev)
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[dev]
	if !ok {
		l = newReentrantLock()
		m.locks[dev] = l
	}
	return l
}

// Acquire blocks up to timeout trying to acquire dev's lock for the calling
// token (typically a goroutine id proxy supplied by the caller), failing
// LOCK_TIMEOUT on expiry. Reentrant: the same token may acquire n times and
// must release n times.
func (m *Manager) Acquire(dev string, token int64, timeout time.Duration) error {
	if !m.lockFor(dev).acquire(token, timeout) {
		return plcerr.LockTimeoutErr(dev)
	}
	return nil
}

// Release releases one level of ownership held by token on dev.
func (m *Manager) Release(dev string, token int64) {
	m.lockFor(dev).release(token)
}
