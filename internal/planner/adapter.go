package planner

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/buildbotics/bbctrl-motion/internal/codec"
	"github.com/buildbotics/bbctrl-motion/internal/errs"
	"github.com/buildbotics/bbctrl-motion/internal/state"
)

// Mode is the planner adapter's run mode (spec §3 "Planner Adapter state").
type Mode int

const (
	ModeIdle Mode = iota
	ModeMDI
	ModeGcode
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeMDI:
		return "mdi"
	case ModeGcode:
		return "gcode"
	default:
		return "unknown"
	}
}

const axisOrder = "xyzabc"

// Adapter wraps an Engine, tracking mode and translating blocks to wire
// commands (spec §4.D).
type Adapter struct {
	log    *logrus.Entry
	store  *state.Store
	engine Engine

	mode         Mode
	lastID       uint64
	pushedConfig bool
}

// New constructs an Adapter bound to store and engine.
func New(log *logrus.Entry, store *state.Store, engine Engine) *Adapter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Adapter{
		log:    log.WithField("component", "planner"),
		store:  store,
		engine: engine,
		mode:   ModeIdle,
	}
}

// Mode reports the current run mode.
func (a *Adapter) Mode() Mode { return a.mode }

// LastID reports the last block id drawn from the engine.
func (a *Adapter) LastID() uint64 { return a.lastID }

// GetConfig builds a configuration snapshot from the State Store: per
// motor with an enabled axis, max-vel/accel/jerk scaled per §4.D, and a
// start position from <axis>p. defaultUnits/withDefaults are forwarded
// verbatim for the Preplanner's non-default-units, without-defaults
// snapshot (§9 open question on get_config(False, False)).
func (a *Adapter) GetConfig(defaultUnits, withDefaults bool) Config {
	cfg := Config{Axes: make(map[byte]AxisLimits), DefaultUnits: defaultUnits, WithDefaults: withDefaults}
	for m := 0; m <= 5; m++ {
		if !a.store.MotorEnabled(m) {
			continue
		}
		axisIdx := a.store.Get(strconv.Itoa(m)+"an", state.Int(0)).AsInt()
		if axisIdx < 0 || int(axisIdx) >= len(axisOrder) {
			continue
		}
		axis := axisOrder[axisIdx]
		maxVel := a.store.Get(strconv.Itoa(m)+"vm", state.Float(0)).AsFloat() * 1000
		maxAccel := a.store.Get(strconv.Itoa(m)+"am", state.Float(0)).AsFloat() * 1000
		maxJerk := a.store.Get(strconv.Itoa(m)+"jm", state.Float(0)).AsFloat() * 1e6
		start := a.store.Get(string(axis)+"p", state.Float(0)).AsFloat()
		cfg.Axes[axis] = AxisLimits{MaxVel: maxVel, MaxAccel: maxAccel, MaxJerk: maxJerk, Start: start}
	}
	return cfg
}

// resolve implements the Resolver contract: names beginning with `_`
// strip the underscore and read the State Store with default 0,
// resolving axis-prefixed names through the motor mapping.
func (a *Adapter) resolve(name string) float64 {
	name = strings.ToLower(strings.TrimPrefix(name, "_"))
	return a.store.Get(name, state.Float(0)).AsFloat()
}

func (a *Adapter) logLine(line string) {
	if line == "" {
		return
	}
	level, msg := line[:1], line[1:]
	entry := a.log
	switch level {
	case "I":
		entry.Info(msg)
	case "D":
		entry.Debug(msg)
	case "W":
		entry.Warn(msg)
	case "E", "C":
		entry.Error(msg)
	default:
		entry.Info(line)
	}
}

// Mdi loads an ad hoc G-code fragment. Fails if the engine is currently
// running a full program.
func (a *Adapter) Mdi(cmd string) error {
	if a.mode == ModeGcode {
		return &errs.E{C: errs.InvalidMode, Op: "planner.Mdi", Msg: "engine is running a program"}
	}
	if err := a.engine.LoadString(cmd); err != nil {
		return &errs.E{C: errs.Protocol, Op: "planner.Mdi", Err: err}
	}
	a.mode = ModeMDI
	return nil
}

// Load begins a full program. Requires the engine to be idle.
func (a *Adapter) Load(path string) error {
	if a.mode != ModeIdle {
		return &errs.E{C: errs.InvalidMode, Op: "planner.Load", Msg: "engine is not idle"}
	}
	if err := a.engine.Load(path); err != nil {
		return &errs.E{C: errs.Protocol, Op: "planner.Load", Err: err}
	}
	a.mode = ModeGcode
	a.pushedConfig = false
	return nil
}

// Reset reconstructs the engine's configuration and clears run state,
// used on estop (§4.A special update hook) and on stop().
func (a *Adapter) Reset() {
	a.mode = ModeIdle
	a.pushedConfig = false
	a.engine.Configure(a.GetConfig(true, true), a.resolve, a.logLine)
}

// Restart snapshots axis positions and restarts the engine at id.
func (a *Adapter) Restart(id uint64) {
	pos := make(map[byte]float64, len(axisOrder))
	for i := 0; i < len(axisOrder); i++ {
		axis := axisOrder[i]
		pos[axis] = a.store.Get(string(axis)+"p", state.Float(0)).AsFloat()
	}
	a.engine.Restart(id, pos)
}

// HasMove reports whether the engine has unconsumed blocks.
func (a *Adapter) HasMove() bool { return a.engine.HasMore() }

// IsRunning reports whether the engine is actively executing.
func (a *Adapter) IsRunning() bool { return a.engine.IsRunning() }

// IsSynchronizing reports whether the engine is waiting on a probe/seek
// result before it can proceed (spec §4.D synchronization hook).
func (a *Adapter) IsSynchronizing() bool { return a.engine.IsSynchronizing() }

// Synchronize resolves the engine's pending synchronization point.
func (a *Adapter) Synchronize(value float64) { a.engine.Synchronize(value) }

// Next draws and encodes blocks until one produces a non-empty wire
// command, or the engine drains (in which case mode becomes idle and
// ok is false). Pushes the current config once per run, as the first
// thing drawn from a freshly (re)loaded engine.
func (a *Adapter) Next() (wire string, ok bool) {
	if !a.pushedConfig {
		a.engine.Configure(a.GetConfig(true, true), a.resolve, a.logLine)
		a.pushedConfig = true
	}
	for a.engine.HasMore() {
		block, got := a.engine.Next()
		if !got {
			break
		}
		if block.Type == "line" {
			a.lastID = block.ID
		}
		wire := a.encodeBlock(block)
		if wire != "" {
			return wire, true
		}
	}
	a.mode = ModeIdle
	return "", false
}

// encodeBlock implements the block->wire dispatch of §4.D.
func (a *Adapter) encodeBlock(b Block) string {
	switch b.Type {
	case "line":
		target := make(map[byte]float32, len(b.Target))
		for axis, v := range b.Target {
			target[axis] = float32(v)
		}
		var times [7]float32
		for i, t := range b.Times {
			times[i] = float32(t)
		}
		return codec.EncodeLine(codec.LineBlock{
			ID: b.ID, ExitVel: float32(b.ExitVel), MaxAccel: float32(b.MaxAccel),
			MaxJerk: float32(b.MaxJerk), Target: target, Times: times,
		})
	case "set":
		return a.encodeSet(b)
	case "output":
		wire, err := codec.Output(b.Output, b.On)
		if err != nil {
			a.log.WithError(err).Warn("unsupported output port from planner")
			return ""
		}
		return wire
	case "dwell":
		return codec.Dwell(float32(b.Seconds))
	case "pause":
		return codec.Pause(b.Optional)
	case "seek":
		sw, err := codec.SwitchByName(b.Switch)
		if err != nil {
			a.log.WithError(err).Warn("unknown seek switch from planner")
			return ""
		}
		return codec.Seek(sw, b.Active, b.ErrorOnMiss)
	default:
		a.log.WithField("type", b.Type).Warn("unknown block type from planner")
		return ""
	}
}

func (a *Adapter) encodeSet(b Block) string {
	switch {
	case b.Name == "line":
		return codec.LineNumber(int64(b.Value))
	case b.Name == "tool":
		return codec.Tool(int64(b.Value))
	case b.Name == "speed":
		return codec.Speed(float32(b.Value))
	case strings.HasSuffix(b.Name, "_home") && strings.HasPrefix(b.Name, "_"):
		axis := b.Name[1]
		return codec.SetPosition(axis, float32(b.Value))
	case strings.HasPrefix(b.Name, "_"):
		name := b.Name[1:]
		if b.IsStr {
			a.store.Set(name, state.Str(b.SVal))
		} else {
			a.store.Set(name, state.Float(b.Value))
		}
		return ""
	default:
		return ""
	}
}

// OnStateUpdate implements the synchronization hook (§4.D): if the
// update contains `id`, release plan back-pressure via SetActive.
func (a *Adapter) OnStateUpdate(changes map[string]state.Value) {
	if id, ok := changes["id"]; ok {
		a.engine.SetActive(uint64(id.AsInt()))
	}
}
