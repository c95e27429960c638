/*
 * plcsim - Adapter protocol: newline-delimited JSON over net.Conn.
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

// Package adapter serves the external wire protocol: one JSON request per
// line in, one JSON response per line out, over a plain net.Conn. Each
// configured adapter listens on its own port and is independently
// readonly-capable.
package adapter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rcornwell/plcsim/internal/devmem"
	"github.com/rcornwell/plcsim/internal/memmodel"
	"github.com/rcornwell/plcsim/internal/plcerr"
)

const defaultMaxPointsPerRequest = 1024

// Config configures one adapter's listener and request limits.
type Config struct {
	Name                string
	Addr                string
	ReadOnly            bool
	MaxFrameBytes       int
	MaxPointsPerRequest int
}

// Request is one decoded frame from a client.
type Request struct {
	ID     string   `json:"id,omitempty"`
	Op     string   `json:"op"`
	Dev    string   `json:"dev"`
	Space  string   `json:"space"`
	Addr   uint32   `json:"addr"`
	Count  int      `json:"count,omitempty"`
	Values []uint32 `json:"values,omitempty"`
}

// Diag carries scan-context diagnostics alongside a successful response.
type Diag struct {
	Scan   int64 `json:"scan"`
	TimeMs int64 `json:"time_ms,omitempty"`
}

// ErrPayload mirrors plcerr.Error over the wire.
type ErrPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Response is one encoded frame sent back to a client.
type Response struct {
	ID     string      `json:"id,omitempty"`
	OK     bool        `json:"ok"`
	Values []uint32    `json:"values,omitempty"`
	Diag   *Diag       `json:"diag,omitempty"`
	Err    *ErrPayload `json:"err,omitempty"`
}

// Server listens on one configured port and serves the wire protocol over
// every accepted connection until Stop is called.
type Server struct {
	cfg      Config
	mem      *devmem.Memory
	listener net.Listener

	wg       sync.WaitGroup
	shutdown chan struct{}
}

// NewServer opens the listener for cfg.Addr.
func NewServer(cfg Config, mem *devmem.Memory) (*Server, error) {
	if cfg.MaxPointsPerRequest <= 0 {
		cfg.MaxPointsPerRequest = defaultMaxPointsPerRequest
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("adapter %q: failed to listen on %s: %w", cfg.Name, cfg.Addr, err)
	}
	return &Server{
		cfg:      cfg,
		mem:      mem,
		listener: ln,
		shutdown: make(chan struct{}),
	}, nil
}

// Serve accepts connections until Stop closes the listener, handling each
// on its own goroutine. It returns nil on a clean shutdown.
func (s *Server) Serve() error {
	slog.Info("adapter listening", "name", s.cfg.Name, "addr", s.listener.Addr().String())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				return fmt.Errorf("adapter %q: accept failed: %w", s.cfg.Name, err)
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Stop closes the listener and waits (with a timeout) for in-flight
// connections to finish.
func (s *Server) Stop() {
	close(s.shutdown)
	s.listener.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		slog.Warn("adapter timed out waiting for connections to finish", "name", s.cfg.Name)
	}
}

func (s *Server) handle(conn net.Conn) {
	connID := uuid.NewString()
	source := "adapter:" + s.cfg.Name + ":" + connID
	slog.Debug("adapter connection opened", "name", s.cfg.Name, "conn", connID, "remote", conn.RemoteAddr().String())
	defer func() {
		conn.Close()
		slog.Debug("adapter connection closed", "name", s.cfg.Name, "conn", connID)
	}()

	reader := bufio.NewReaderSize(conn, s.maxFrameBytes())
	enc := json.NewEncoder(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return
		}
		if s.cfg.MaxFrameBytes > 0 && len(line) > s.cfg.MaxFrameBytes {
			enc.Encode(Response{OK: false, Err: toErrPayload(plcerr.InvalidRequestErr("frame exceeds max_frame_bytes"))})
			if err != nil {
				return
			}
			continue
		}

		var req Request
		if decErr := json.Unmarshal(line, &req); decErr != nil {
			enc.Encode(Response{OK: false, Err: toErrPayload(plcerr.InvalidRequestErr("malformed json frame"))})
			if err != nil {
				return
			}
			continue
		}

		resp := s.dispatch(&req, source)
		if encErr := enc.Encode(resp); encErr != nil {
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) maxFrameBytes() int {
	if s.cfg.MaxFrameBytes > 0 {
		return s.cfg.MaxFrameBytes
	}
	return 64 * 1024
}

func (s *Server) dispatch(req *Request, source string) Response {
	space, ok := parseSpace(req.Space)
	if !ok {
		return errorResponse(req.ID, plcerr.InvalidRequestErr("unsupported space: "+req.Space))
	}

	switch req.Op {
	case "read":
		return s.doRead(req, space, source)
	case "write":
		return s.doWrite(req, space, source)
	default:
		return errorResponse(req.ID, plcerr.InvalidRequestErr("unsupported op: "+req.Op))
	}
}

func (s *Server) doRead(req *Request, space memmodel.Space, source string) Response {
	count := req.Count
	if count <= 0 {
		count = 1
	}
	if count > s.cfg.MaxPointsPerRequest {
		return errorResponse(req.ID, plcerr.TooManyPointsErr(count, s.cfg.MaxPointsPerRequest))
	}

	values, err := s.mem.Read(req.Dev, space, req.Addr, count, source)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return Response{
		ID:     req.ID,
		OK:     true,
		Values: values,
		Diag:   &Diag{Scan: s.mem.CurrentScanID()},
	}
}

func (s *Server) doWrite(req *Request, space memmodel.Space, source string) Response {
	if s.cfg.ReadOnly {
		return errorResponse(req.ID, plcerr.ReadonlyErr(req.Dev))
	}
	if len(req.Values) == 0 {
		return errorResponse(req.ID, plcerr.InvalidRequestErr("write requires non-empty values"))
	}
	if len(req.Values) > s.cfg.MaxPointsPerRequest {
		return errorResponse(req.ID, plcerr.TooManyPointsErr(len(req.Values), s.cfg.MaxPointsPerRequest))
	}

	if err := s.mem.Write(req.Dev, space, req.Addr, req.Values, source); err != nil {
		return errorResponse(req.ID, err)
	}
	return Response{
		ID:   req.ID,
		OK:   true,
		Diag: &Diag{Scan: s.mem.CurrentScanID()},
	}
}

func parseSpace(s string) (memmodel.Space, bool) {
	switch memmodel.Space(s) {
	case memmodel.Bit, memmodel.Word, memmodel.Dword:
		return memmodel.Space(s), true
	default:
		return "", false
	}
}

func errorResponse(id string, err error) Response {
	return Response{ID: id, OK: false, Err: toErrPayload(err)}
}

func toErrPayload(err error) *ErrPayload {
	if pe, ok := plcerr.As(err); ok {
		return &ErrPayload{Code: string(pe.Code), Message: pe.Message, Detail: pe.Detail}
	}
	return &ErrPayload{Code: string(plcerr.Internal), Message: err.Error()}
}

// Manager supervises a fleet of adapter servers, one per configured port.
type Manager struct {
	servers []*Server
}

// NewManager builds one Server per cfg and returns a Manager over them. Any
// failure to bind a listener aborts the whole set; already-opened listeners
// are closed.
func NewManager(cfgs []Config, mem *devmem.Memory) (*Manager, error) {
	m := &Manager{}
	for _, cfg := range cfgs {
		srv, err := NewServer(cfg, mem)
		if err != nil {
			m.closeAll()
			return nil, err
		}
		m.servers = append(m.servers, srv)
	}
	return m, nil
}

func (m *Manager) closeAll() {
	for _, s := range m.servers {
		s.listener.Close()
	}
}

// Run starts every adapter's Serve loop and blocks until all have returned,
// returning the first non-nil error; later errors are not reported.
func (m *Manager) Run() error {
	var g errgroup.Group
	for _, srv := range m.servers {
		srv := srv
		g.Go(srv.Serve)
	}
	return g.Wait()
}

// Stop shuts down every adapter server.
func (m *Manager) Stop() {
	var wg sync.WaitGroup
	for _, srv := range m.servers {
		srv := srv
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.Stop()
		}()
	}
	wg.Wait()
}
