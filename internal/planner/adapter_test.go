package planner

import (
	"testing"

	"github.com/buildbotics/bbctrl-motion/internal/state"
)

// fakeEngine is a synchronous, in-memory stand-in for the external
// planner engine (§6.3), following the teacher's pattern of hand-written
// fakes at I/O boundaries rather than a mocking framework.
type fakeEngine struct {
	blocks    []Block
	pos       int
	running   bool
	syncing   bool
	activeID  uint64
	restarted bool
	cfg       Config
}

func (f *fakeEngine) Configure(cfg Config, resolve Resolver, log LogFunc) { f.cfg = cfg }
func (f *fakeEngine) Load(path string) error                             { return nil }
func (f *fakeEngine) LoadString(src string) error                        { return nil }
func (f *fakeEngine) HasMore() bool                                      { return f.pos < len(f.blocks) }
func (f *fakeEngine) Next() (Block, bool) {
	if f.pos >= len(f.blocks) {
		return Block{}, false
	}
	b := f.blocks[f.pos]
	f.pos++
	return b, true
}
func (f *fakeEngine) SetActive(id uint64)         { f.activeID = id }
func (f *fakeEngine) IsRunning() bool             { return f.running }
func (f *fakeEngine) IsSynchronizing() bool       { return f.syncing }
func (f *fakeEngine) Synchronize(value float64)   {}
func (f *fakeEngine) Restart(id uint64, pos map[byte]float64) { f.restarted = true }

func TestAdapterNextSkipsNoOpBlocksAndEncodesLine(t *testing.T) {
	eng := &fakeEngine{blocks: []Block{
		{Type: "set", Name: "other_unhandled"}, // no-op, should be skipped
		{Type: "line", ID: 1, Target: map[byte]float64{'x': 5}},
	}}
	a := New(nil, state.New(nil, 0), eng)

	wire, ok := a.Next()
	if !ok {
		t.Fatal("expected a block to be drawn")
	}
	if wire == "" {
		t.Fatal("expected non-empty wire command for a line block")
	}
	if a.LastID() != 1 {
		t.Fatalf("expected last id 1, got %d", a.LastID())
	}
	if eng.cfg.Axes == nil {
		t.Fatal("expected config to have been pushed")
	}
}

func TestAdapterNextDrainsToIdle(t *testing.T) {
	eng := &fakeEngine{}
	a := New(nil, state.New(nil, 0), eng)
	a.mode = ModeGcode

	_, ok := a.Next()
	if ok {
		t.Fatal("expected no block from an empty engine")
	}
	if a.Mode() != ModeIdle {
		t.Fatalf("expected mode idle after drain, got %v", a.Mode())
	}
}

func TestMdiRejectedDuringGcode(t *testing.T) {
	eng := &fakeEngine{}
	a := New(nil, state.New(nil, 0), eng)
	a.mode = ModeGcode

	if err := a.Mdi("G0 X1"); err == nil {
		t.Fatal("expected Mdi to fail while engine runs a program")
	}
}

func TestOnStateUpdateReleasesBackpressure(t *testing.T) {
	eng := &fakeEngine{}
	a := New(nil, state.New(nil, 0), eng)

	a.OnStateUpdate(map[string]state.Value{"id": state.Int(9)})
	if eng.activeID != 9 {
		t.Fatalf("expected SetActive(9), got %d", eng.activeID)
	}
}

func TestEncodeSetReflectsUnderscoreVarsIntoState(t *testing.T) {
	st := state.New(nil, 0)
	a := New(nil, st, &fakeEngine{})

	wire := a.encodeSet(Block{Type: "set", Name: "_0hd", Value: -1})
	if wire != "" {
		t.Fatalf("expected no wire output for a reflected var, got %q", wire)
	}
	if got := st.Get("0hd", state.Float(0)); !got.Equal(state.Float(-1)) {
		t.Fatalf("expected 0hd to be set to -1, got %v", got)
	}
}

func TestGetConfigBuildsAxisLimitsFromEnabledMotors(t *testing.T) {
	st := state.New(nil, 0)
	st.Set("0an", state.Int(0)) // motor 0 = x
	st.Set("0pm", state.Bool(true))
	st.Set("0vm", state.Float(1))
	st.Set("0am", state.Float(2))
	st.Set("0jm", state.Float(3))
	st.Set("xp", state.Float(7))

	a := New(nil, st, &fakeEngine{})
	cfg := a.GetConfig(true, true)

	limits, ok := cfg.Axes['x']
	if !ok {
		t.Fatal("expected axis x in config")
	}
	if limits.MaxVel != 1000 || limits.MaxAccel != 2000 || limits.MaxJerk != 3e6 || limits.Start != 7 {
		t.Fatalf("unexpected limits: %+v", limits)
	}
}
