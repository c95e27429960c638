package scanengine

import (
	"errors"
	"testing"

	"github.com/rcornwell/plcsim/internal/devmem"
	"github.com/rcornwell/plcsim/internal/ladder"
	"github.com/rcornwell/plcsim/internal/memmodel"
	"github.com/rcornwell/plcsim/internal/wal"
)

func testMemory(t *testing.T) *devmem.Memory {
	t.Helper()
	profile := memmodel.NewProfile("t", "1", "", []*memmodel.Model{
		{
			Suffix:       "D1",
			Spaces:       map[memmodel.Space]memmodel.Range{memmodel.Bit: {Min: 0, Max: 7}},
			Rule:         memmodel.Immediate,
			DefaultValue: 0,
			Writable:     true,
		},
		{
			Suffix:       "D2",
			Spaces:       map[memmodel.Space]memmodel.Range{memmodel.Word: {Min: 0, Max: 15}},
			Rule:         memmodel.NextScan,
			DefaultValue: 0,
			Writable:     true,
		},
	})
	return devmem.New(profile, wal.New(64), devmem.Options{})
}

type countingModule struct {
	name string
	n    int
	fail bool
}

func (c *countingModule) Name() string { return c.name }
func (c *countingModule) Execute(ctx *ladder.Context) error {
	c.n++
	if c.fail {
		return errors.New("boom")
	}
	return nil
}

type recordingHook struct {
	begins   []int64
	ends     []int64
	befores  int
	afters   int
	outcomes []Outcome
}

func (h *recordingHook) OnScanBegin(scanID, deltaMs int64) { h.begins = append(h.begins, scanID) }
func (h *recordingHook) BeforeModule(ctx *ladder.Context, m ladder.Module) { h.befores++ }
func (h *recordingHook) AfterModule(ctx *ladder.Context, m ladder.Module, outcome Outcome) {
	h.afters++
	h.outcomes = append(h.outcomes, outcome)
}
func (h *recordingHook) OnScanEnd(scanID int64) { h.ends = append(h.ends, scanID) }

func TestStepRunsHooksAndModulesInOrder(t *testing.T) {
	mem := testMemory(t)
	reg := ladder.NewRegistry()
	m1 := &countingModule{name: "m1"}
	m2 := &countingModule{name: "m2"}
	reg.Register(m1)
	reg.Register(m2)

	e := New(Config{Mode: ModeStep, PeriodMs: 10, OnModuleError: Continue, OnScanErrorWAL: KeepWAL}, mem, reg)
	hook := &recordingHook{}
	e.AddHook(hook)

	if err := e.Step(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m1.n != 1 || m2.n != 1 {
		t.Fatalf("expected both modules executed once, got m1=%d m2=%d", m1.n, m2.n)
	}
	if len(hook.begins) != 1 || hook.begins[0] != 1 {
		t.Fatalf("expected OnScanBegin(1), got %v", hook.begins)
	}
	if len(hook.ends) != 1 || hook.ends[0] != 1 {
		t.Fatalf("expected OnScanEnd(1), got %v", hook.ends)
	}
	if hook.befores != 2 || hook.afters != 2 {
		t.Fatalf("expected 2 before/after calls, got before=%d after=%d", hook.befores, hook.afters)
	}
	if e.ScanID() != 1 {
		t.Fatalf("expected engine scan id 1, got %d", e.ScanID())
	}
}

func TestStepIncrementsScanIDEachCall(t *testing.T) {
	mem := testMemory(t)
	reg := ladder.NewRegistry()
	e := New(Config{Mode: ModeStep, PeriodMs: 5, OnModuleError: Continue, OnScanErrorWAL: KeepWAL}, mem, reg)

	for want := int64(1); want <= 3; want++ {
		if err := e.Step(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if e.ScanID() != want {
			t.Fatalf("expected scan id %d, got %d", want, e.ScanID())
		}
	}
}

func TestModuleErrorContinuesWhenConfigured(t *testing.T) {
	mem := testMemory(t)
	reg := ladder.NewRegistry()
	bad := &countingModule{name: "bad", fail: true}
	good := &countingModule{name: "good"}
	reg.Register(bad)
	reg.Register(good)

	e := New(Config{Mode: ModeStep, PeriodMs: 10, OnModuleError: Continue, OnScanErrorWAL: KeepWAL}, mem, reg)
	if err := e.Step(); err != nil {
		t.Fatalf("continue policy should not surface module error, got %v", err)
	}
	if good.n != 1 {
		t.Fatal("expected execution to continue to the next module")
	}
}

func TestModuleErrorStopsWhenConfigured(t *testing.T) {
	mem := testMemory(t)
	reg := ladder.NewRegistry()
	bad := &countingModule{name: "bad", fail: true}
	after := &countingModule{name: "after"}
	reg.Register(bad)
	reg.Register(after)

	// Queue a deferred write targeted at the scan about to run, so a skipped
	// apply_wal is observable: it stays pending if Step aborts before
	// reaching it.
	if err := mem.Write("D2", memmodel.Word, 0, []uint32{3}, "adapter:pre"); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	e := New(Config{Mode: ModeStep, PeriodMs: 10, OnModuleError: Stop, OnScanErrorWAL: KeepWAL}, mem, reg)
	hook := &recordingHook{}
	e.AddHook(hook)

	if err := e.Step(); err == nil {
		t.Fatal("expected stop policy to surface an error")
	}
	if after.n != 0 {
		t.Fatal("expected module execution to stop after the failing module")
	}
	if len(hook.ends) != 0 {
		t.Fatal("expected OnScanEnd to not fire when a scan is aborted via STOP")
	}

	vals, err := mem.Read("D2", memmodel.Word, 0, 1, "adapter:x")
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if vals[0] != 0 {
		t.Fatalf("expected apply_wal to have been skipped on an aborted scan, got %d", vals[0])
	}

	mem.ApplyWAL("scan_end", mem.CurrentScanID())
	vals, err = mem.Read("D2", memmodel.Word, 0, 1, "adapter:x")
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if vals[0] != 3 {
		t.Fatalf("expected the pending write to still be in the WAL, ready to apply, got %d", vals[0])
	}
}

func TestFailedScanDiscardsOnlyLadderWAL(t *testing.T) {
	mem := testMemory(t)

	// Tag both writes with scan 1, the scan Step is about to run, so the
	// discard that follows the module failure covers the ladder-origin one.
	mem.BeginScan(1, 10)
	if err := mem.Write("D2", memmodel.Word, 0, []uint32{7}, "ladder:failing"); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if err := mem.Write("D2", memmodel.Word, 1, []uint32{9}, "adapter:conn1"); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	reg := ladder.NewRegistry()
	bad := &countingModule{name: "bad", fail: true}
	reg.Register(bad)

	e := New(Config{Mode: ModeStep, PeriodMs: 10, OnModuleError: Continue, OnScanErrorWAL: DiscardWALForScan}, mem, reg)
	if err := e.Step(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Writes made during scan 1 target scan 2; apply them as the next scan's
	// end would.
	mem.ApplyWAL("scan_end", 2)

	vals, err := mem.Read("D2", memmodel.Word, 1, 1, "adapter:conn1")
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if vals[0] != 9 {
		t.Fatalf("expected adapter-origin write to survive, got %d", vals[0])
	}

	vals, err = mem.Read("D2", memmodel.Word, 0, 1, "adapter:conn1")
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if vals[0] != 0 {
		t.Fatalf("expected ladder-origin write to be discarded, got %d", vals[0])
	}
}

func TestStopHaltsRunForever(t *testing.T) {
	mem := testMemory(t)
	reg := ladder.NewRegistry()
	m := &countingModule{name: "m"}
	reg.Register(m)

	e := New(Config{Mode: ModeStep, PeriodMs: 1, OnModuleError: Continue, OnScanErrorWAL: KeepWAL}, mem, reg)
	done := make(chan error, 1)
	go func() { done <- e.RunForever() }()

	e.Stop()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}
