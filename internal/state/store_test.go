package state

import (
	"sync"
	"testing"
	"time"
)

func newTestStore() *Store {
	return New(nil, 0) // debounce=0: synchronous flush, deterministic tests
}

func TestSetUnchangedValueDoesNotNotify(t *testing.T) {
	s := newTestStore()
	s.Set("line", Int(1))

	calls := 0
	s.AddListener(func(changes map[string]Value) { calls++ })
	calls = 0 // ignore the immediate registration call

	s.Set("line", Int(1)) // same value
	if calls != 0 {
		t.Fatalf("expected no notification for unchanged value, got %d", calls)
	}

	s.Set("line", Int(2))
	if calls != 1 {
		t.Fatalf("expected one notification for changed value, got %d", calls)
	}
}

func TestListenerReceivesFullMappingOnRegistration(t *testing.T) {
	s := newTestStore()
	s.Set("tool", Int(3))
	s.Set("units", Str("METRIC"))

	var seen map[string]Value
	s.AddListener(func(changes map[string]Value) { seen = changes })

	if len(seen) != 2 {
		t.Fatalf("expected full mapping of 2 entries on registration, got %d", len(seen))
	}
	if !seen["tool"].Equal(Int(3)) {
		t.Fatalf("expected tool=3, got %v", seen["tool"])
	}
}

func TestDebounceCoalescesChangesIntoOneNotification(t *testing.T) {
	s := New(nil, 20*time.Millisecond)

	var mu sync.Mutex
	var batches []map[string]Value
	s.AddListener(func(changes map[string]Value) {
		mu.Lock()
		batches = append(batches, changes)
		mu.Unlock()
	})

	mu.Lock()
	batches = nil // drop the registration batch
	mu.Unlock()

	s.Set("a", Int(1))
	s.Set("b", Int(2))
	s.Set("c", Int(3))

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("expected exactly one coalesced notification, got %d", len(batches))
	}
	if len(batches[0]) != 3 {
		t.Fatalf("expected 3 changes in the coalesced batch, got %d", len(batches[0]))
	}
}

func TestListenerPanicIsolated(t *testing.T) {
	s := newTestStore()

	second := false
	s.AddListener(func(changes map[string]Value) {
		if _, ok := changes["trigger"]; ok {
			panic("boom")
		}
	})
	s.AddListener(func(changes map[string]Value) {
		if _, ok := changes["trigger"]; ok {
			second = true
		}
	})

	s.Set("trigger", Bool(true))
	if !second {
		t.Fatal("second listener should still run after first listener panicked")
	}
}

func TestAxisResolutionMatchesMotorMapping(t *testing.T) {
	s := newTestStore()
	// motor 0 claims axis x (index 0), power-enabled
	s.Set("0an", Int(0))
	s.Set("0pm", Bool(true))
	s.Set("0hd", Int(-1))

	if got := s.Get("x_hd", Int(0)); !got.Equal(Int(-1)) {
		t.Fatalf("x_hd should resolve through motor 0, got %v", got)
	}
}

func TestAxisResolutionAcrossRemapping(t *testing.T) {
	// Mirrors spec.md §8 scenario 6.
	s := newTestStore()
	s.Set("0an", Int(0)) // motor 0 = X
	s.Set("0pm", Bool(true))

	s.Set("x_hd", Int(-1)) // writes 0hd
	if got := s.Get("0hd", Int(0)); !got.Equal(Int(-1)) {
		t.Fatalf("expected 0hd == -1 after writing x_hd, got %v", got)
	}

	s.Set("0an", Int(1)) // motor 0 now = Y

	if got := s.Get("y_hd", Int(0)); !got.Equal(Int(-1)) {
		t.Fatalf("expected y_hd == -1 after remap, got %v", got)
	}
	if got := s.Get("x_hd", Int(99)); !got.Equal(Int(99)) {
		t.Fatalf("expected x_hd to fall back to default after remap, got %v", got)
	}
}

func TestFindMotorPicksLowestEnabledIndex(t *testing.T) {
	s := newTestStore()
	s.Set("0an", Int(0))
	s.Set("0pm", Bool(false)) // disabled
	s.Set("1an", Int(0))
	s.Set("1pm", Bool(true))

	m, ok := s.FindMotor('x')
	if !ok || m != 1 {
		t.Fatalf("expected motor 1 (lowest enabled), got m=%d ok=%v", m, ok)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore()
	s.Set("0homed", Bool(true))
	s.Set("1homed", Bool(true))
	s.Set("xp", Float(12.5))
	s.Set("offset_x", Float(3))

	s.Reset()

	if s.Get("0homed", Bool(true)).AsBool() {
		t.Fatal("motor 0 should be unhomed after reset")
	}
	if s.Get("1homed", Bool(true)).AsBool() {
		t.Fatal("motor 1 should be unhomed after reset")
	}
	if got := s.Get("xp", Float(-1)); got.AsFloat() != 0 {
		t.Fatalf("xp should be zeroed after reset, got %v", got)
	}
	if got := s.Get("offset_x", Float(-1)); got.AsFloat() != 0 {
		t.Fatalf("offset_x should be zeroed after reset, got %v", got)
	}
}

func TestMachineCmdsAndVarsExpandsIndexedEntries(t *testing.T) {
	s := newTestStore()
	reloaded := false
	s.OnConfigReload = func() { reloaded = true }

	s.MachineCmdsAndVars(map[string]VariableSpec{
		"an": {Index: "01"},
		"tm": {Index: ""},
	})

	if !reloaded {
		t.Fatal("expected OnConfigReload to fire")
	}

	sinkCalls := map[string]Value{}
	s.ConfigSink = func(code string, v Value) { sinkCalls[code] = v }

	s.Config("0an", Int(2))
	s.Config("tm", Int(5))
	s.Config("not_a_machine_var", Int(9))

	if _, ok := sinkCalls["0an"]; !ok {
		t.Fatal("expected 0an to be routed through ConfigSink")
	}
	if _, ok := sinkCalls["tm"]; !ok {
		t.Fatal("expected tm to be routed through ConfigSink")
	}
	if _, ok := sinkCalls["not_a_machine_var"]; ok {
		t.Fatal("non-machine-variable code should not reach ConfigSink")
	}
	if !s.Get("not_a_machine_var", Int(0)).Equal(Int(9)) {
		t.Fatal("non-machine-variable code should fall through to a plain Set")
	}
}

func TestAxisHomeFailReason(t *testing.T) {
	s := newTestStore()
	if reason := s.AxisHomeFailReason('x'); reason == "" {
		t.Fatal("expected a failure reason when no motor maps to the axis")
	}

	s.Set("0an", Int(0))
	s.Set("0pm", Bool(true))
	s.Set("0ho", Int(HomingManual))
	if reason := s.AxisHomeFailReason('x'); reason == "" {
		t.Fatal("expected a failure reason for manual homing mode")
	}

	s.Set("0ho", Int(HomingSwitchMin))
	if reason := s.AxisHomeFailReason('x'); reason != "" {
		t.Fatalf("expected axis to be homeable, got reason %q", reason)
	}
	if !s.AxisCanHome('x') {
		t.Fatal("AxisCanHome should agree with AxisHomeFailReason")
	}
}
