package devmem

import (
	"testing"
	"time"

	"github.com/rcornwell/plcsim/internal/memmodel"
	"github.com/rcornwell/plcsim/internal/plcerr"
	"github.com/rcornwell/plcsim/internal/wal"
)

func testProfile() *memmodel.Profile {
	return memmodel.NewProfile("test", "1", "", []*memmodel.Model{
		{
			Suffix:   "DM",
			Spaces:   map[memmodel.Space]memmodel.Range{memmodel.Word: {Min: 0, Max: 65534}},
			Rule:     memmodel.Immediate,
			Writable: true,
		},
		{
			Suffix:   "MR",
			Spaces:   map[memmodel.Space]memmodel.Range{memmodel.Bit: {Min: 0, Max: 255}},
			Rule:     memmodel.NextScan,
			Writable: true,
		},
		{
			Suffix:   "R",
			Spaces:   map[memmodel.Space]memmodel.Range{memmodel.Bit: {Min: 0, Max: 255}},
			Rule:     memmodel.IOImage,
			Writable: true,
		},
	})
}

func newMem() *Memory {
	return New(testProfile(), wal.New(1024), Options{LockTimeout: time.Second})
}

func TestSparseDefaultRead(t *testing.T) {
	m := newMem()
	vals, err := m.Read("DM", memmodel.Word, 0, 2, "adapter:t")
	if err != nil {
		t.Fatal(err)
	}
	if vals[0] != 0 || vals[1] != 0 {
		t.Fatalf("expected default zeros, got %v", vals)
	}
}

func TestRangeBoundary(t *testing.T) {
	m := newMem()
	if err := m.Write("DM", memmodel.Word, 65534, []uint32{1}, "adapter:t"); err != nil {
		t.Fatal(err)
	}
	vals, err := m.Read("DM", memmodel.Word, 65534, 1, "adapter:t")
	if err != nil || vals[0] != 1 {
		t.Fatalf("expected [1], got %v err=%v", vals, err)
	}
	_, err = m.Read("DM", memmodel.Word, 65535, 1, "adapter:t")
	pe, ok := plcerr.As(err)
	if !ok || pe.Code != plcerr.OutOfRange {
		t.Fatalf("expected OUT_OF_RANGE, got %v", err)
	}
}

func TestNextScanDeferral(t *testing.T) {
	m := newMem()
	m.BeginScan(1, 10)
	if err := m.Write("MR", memmodel.Bit, 0, []uint32{1}, "adapter:t"); err != nil {
		t.Fatal(err)
	}
	vals, _ := m.Read("MR", memmodel.Bit, 0, 1, "adapter:t")
	if vals[0] != 0 {
		t.Fatalf("write must not be visible within the same scan, got %v", vals)
	}
	m.ApplyWAL("scan_end", 2)
	vals, _ = m.Read("MR", memmodel.Bit, 0, 1, "adapter:t")
	if vals[0] != 1 {
		t.Fatalf("write must be visible after apply_wal at target scan, got %v", vals)
	}
}

func TestIOImageFreeze(t *testing.T) {
	m := newMem()
	m.BeginScan(1, 10)
	if err := m.Write("R", memmodel.Bit, 0, []uint32{1}, "adapter:t"); err != nil {
		t.Fatal(err)
	}
	vals, _ := m.Read("R", memmodel.Bit, 0, 1, "ladder:A")
	if vals[0] != 0 {
		t.Fatalf("ladder read must see frozen image, got %v", vals)
	}
	m.ApplyWAL("scan_end", 2)
	vals, _ = m.Read("R", memmodel.Bit, 0, 1, "adapter:t")
	if vals[0] != 1 {
		t.Fatalf("adapter read after apply_wal must see new value, got %v", vals)
	}
}

func TestLadderFailureDiscardsOnlyLadderWAL(t *testing.T) {
	m := newMem()
	m.BeginScan(1, 10)
	_ = m.Write("MR", memmodel.Bit, 11, []uint32{1}, "ladder:Failing")
	_ = m.Write("MR", memmodel.Bit, 12, []uint32{1}, "adapter:t")

	m.wal.DiscardScan(1, "ladder:")
	m.ApplyWAL("scan_end", 2)

	vals, _ := m.Read("MR", memmodel.Bit, 11, 1, "adapter:t")
	if vals[0] != 0 {
		t.Fatalf("ladder-origin write for failed scan must be discarded, got %v", vals)
	}
	vals, _ = m.Read("MR", memmodel.Bit, 12, 1, "adapter:t")
	if vals[0] != 1 {
		t.Fatalf("adapter-origin write for same scan must survive, got %v", vals)
	}
}

func TestCountZeroAndOne(t *testing.T) {
	m := newMem()
	_, err := m.Read("DM", memmodel.Word, 0, 0, "adapter:t")
	if err == nil {
		t.Fatal("expected OUT_OF_RANGE for count=0")
	}
	_, err = m.Read("DM", memmodel.Word, 0, 1, "adapter:t")
	if err != nil {
		t.Fatalf("count=1 should succeed: %v", err)
	}
}

func TestValueOutOfRange(t *testing.T) {
	m := newMem()
	err := m.Write("MR", memmodel.Bit, 0, []uint32{2}, "adapter:t")
	pe, ok := plcerr.As(err)
	if !ok || pe.Code != plcerr.OutOfRange {
		t.Fatalf("expected OUT_OF_RANGE for bit value 2, got %v", err)
	}
}

func TestReadonlyDevice(t *testing.T) {
	profile := memmodel.NewProfile("test", "1", "", []*memmodel.Model{
		{Suffix: "RO", Spaces: map[memmodel.Space]memmodel.Range{memmodel.Word: {Min: 0, Max: 10}}, Rule: memmodel.Immediate, Writable: false},
	})
	m := New(profile, wal.New(16), Options{LockTimeout: time.Second})
	err := m.Write("RO", memmodel.Word, 0, []uint32{1}, "adapter:t")
	pe, ok := plcerr.As(err)
	if !ok || pe.Code != plcerr.Readonly {
		t.Fatalf("expected READONLY, got %v", err)
	}
}

func TestUnknownDevice(t *testing.T) {
	m := newMem()
	_, err := m.Read("ZZ", memmodel.Word, 0, 1, "adapter:t")
	pe, ok := plcerr.As(err)
	if !ok || pe.Code != plcerr.UnknownDevice {
		t.Fatalf("expected UNKNOWN_DEVICE, got %v", err)
	}
}
