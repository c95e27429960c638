/*
 * plcsim - State store: scratchpad used by PLC function blocks.
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

// Package statestore is the flat, string-keyed scratchpad that PLC function
// blocks use to carry state across scans. It is touched only from ladder
// modules within a single-threaded scan, so it needs no internal locking.
package statestore

// Store is an opaque key->value map scoped to a Scan Engine instance.
type Store struct {
	values map[string]any
}

func New() *Store {
	return &Store{values: map[string]any{}}
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Store) Set(key string, value any) {
	s.values[key] = value
}

// GetBool returns the bool stored at key, defaulting to false.
func (s *Store) GetBool(key string) bool {
	v, ok := s.values[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetInt returns the int stored at key, defaulting to 0.
func (s *Store) GetInt(key string) int {
	v, ok := s.values[key]
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}
