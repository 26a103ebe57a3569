// Package coordinator implements the Motion Coordinator (spec §4.E):
// the user-visible command surface (jog, MDI, start, step, pause,
// unpause, stop, estop, home, set-position) composing the State Store,
// Planner Adapter and Firmware Link into correct run/hold/idle
// transitions.
package coordinator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/buildbotics/bbctrl-motion/internal/codec"
	"github.com/buildbotics/bbctrl-motion/internal/errs"
	"github.com/buildbotics/bbctrl-motion/internal/planner"
	"github.com/buildbotics/bbctrl-motion/internal/state"
)

// Machine state enum values (the "x" key), per §6.1.
const (
	MachineReady    = "READY"
	MachineHolding  = "HOLDING"
	MachineEstopped = "ESTOPPED"
)

const probeSwitchFound = "Switch found"

// defaultHomeOrder is the axis order home() iterates when no axis list
// is supplied (spec §4.E).
const defaultHomeOrder = "zxyabc"

// Engine narrows planner.Adapter to the methods the coordinator needs,
// so it can be faked in tests without a real trajectory engine.
type Engine interface {
	Mode() planner.Mode
	Mdi(cmd string) error
	Load(path string) error
	Reset()
	Restart(id uint64)
	IsRunning() bool
	IsSynchronizing() bool
	LastID() uint64
}

// Link narrows firmwarelink.Link to the methods the coordinator drives.
type Link interface {
	Enqueue(cmd string)
	EnableWrite()
}

// SideBand narrows firmwarelink.SideBand to the I2C operations the
// coordinator issues directly.
type SideBand interface {
	Estop() error
	Clear() error
	Flush() error
	Step() error
	Unpause() error
	Pause(optional bool) error
}

// Coordinator composes the State Store, Planner Adapter and Firmware
// Link/SideBand into the command surface of §4.E.
type Coordinator struct {
	log *logrus.Entry

	store   *state.Store
	planner Engine
	link    Link
	side    SideBand
}

// New constructs a Coordinator. It also wires store.Store's ConfigSink
// so `$name=value` MDI writes destined for machine variables reach the
// firmware as an asynchronous ('$') set command.
func New(log *logrus.Entry, store *state.Store, eng Engine, link Link, side SideBand) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Coordinator{
		log:     log.WithField("component", "coordinator"),
		store:   store,
		planner: eng,
		link:    link,
		side:    side,
	}
	store.ConfigSink = c.sendMachineConfig
	return c
}

// sendMachineConfig forwards a machine-variable write to the firmware
// as an asynchronous set command (State.config()'s forwarding target).
func (c *Coordinator) sendMachineConfig(codeName string, v state.Value) {
	c.link.Enqueue(strings.TrimRight(codec.SetAsync(codeName, v.AsString()), "\n"))
}

// IsBusy reports whether the planner engine is actively executing,
// the gate for jog/set-position rejections and for Step's program start.
// Mdi is gated on the planner mode instead.
func (c *Coordinator) IsBusy() bool { return c.planner.IsRunning() }

// OnStateUpdate implements the per-telemetry-batch hooks of §4.A/§4.D
// that must not wait for the debounced listener fan-out: resetting the
// planner on an emergency stop, and releasing a probe-triggered hold.
func (c *Coordinator) OnStateUpdate(delta map[string]state.Value) {
	if x, ok := delta["x"]; ok && x.AsString() == MachineEstopped {
		c.planner.Reset()
	}
	if pr, ok := delta["pr"]; ok && pr.AsString() == probeSwitchFound && c.planner.IsSynchronizing() {
		if err := c.Unpause(); err != nil {
			c.log.WithError(err).Warn("auto-unpause on probe switch found failed")
		}
	}
}

// Mdi dispatches a single MDI command per its leading character (§4.E).
func (c *Coordinator) Mdi(cmd string) error {
	switch {
	case strings.HasPrefix(cmd, "$"):
		return c.mdiConfig(cmd[1:])
	case strings.HasPrefix(cmd, "\\"):
		c.link.Enqueue(cmd[1:])
		return nil
	default:
		if c.planner.Mode() == planner.ModeGcode {
			return &errs.E{C: errs.InvalidMode, Op: "coordinator.Mdi", Msg: "engine is running a program"}
		}
		if err := c.planner.Mdi(cmd); err != nil {
			return err
		}
		c.link.EnableWrite()
		return nil
	}
}

// mdiConfig implements the `$name=value` state-variable set-or-query
// form, with true/false/<float> coercion.
func (c *Coordinator) mdiConfig(rest string) error {
	name, valueStr, hasValue := strings.Cut(rest, "=")
	if !hasValue {
		return nil // query form: no-op, caller reads via Store.Get
	}
	c.store.Config(name, coerce(valueStr))
	return nil
}

func coerce(s string) state.Value {
	switch s {
	case "true":
		return state.Bool(true)
	case "false":
		return state.Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return state.Float(f)
	}
	return state.Str(s)
}

// Jog encodes and queues continuous per-axis jog velocities. Rejected
// while the engine is busy.
func (c *Coordinator) Jog(target map[byte]float64) error {
	if c.IsBusy() {
		return &errs.E{C: errs.Busy, Op: "coordinator.Jog"}
	}
	target32 := make(map[byte]float32, len(target))
	for axis, v := range target {
		target32[axis] = float32(v)
	}
	c.link.Enqueue(codec.Jog(target32))
	return nil
}

// Home homes the given axes (or the default order if axes is empty),
// skipping any axis that cannot currently be homed. If position is
// non-nil, axes must name exactly one axis and a direct G28.3 is issued.
func (c *Coordinator) Home(axes []byte, position *float64) error {
	if position != nil {
		if len(axes) != 1 {
			return &errs.E{C: errs.InvalidParams, Op: "coordinator.Home", Msg: "position requires exactly one axis"}
		}
		return c.Mdi(fmt.Sprintf("G28.3 %s%g", axisWord(axes[0]), *position))
	}

	order := axes
	if len(order) == 0 {
		order = []byte(defaultHomeOrder)
	}
	for _, axis := range order {
		if !c.store.AxisCanHome(axis) {
			c.log.WithField("axis", string(axis)).WithField("reason", c.store.AxisHomeFailReason(axis)).
				Debug("skipping axis that cannot be homed")
			continue
		}
		if err := c.Mdi(expandHomingTemplate(axis)); err != nil {
			return err
		}
	}
	return nil
}

// SetPosition sets axis's current position. If the axis is homed this
// is an offset (G92); otherwise it queues a direct position write.
// Rejected while the engine is busy.
func (c *Coordinator) SetPosition(axis byte, pos float64) error {
	if c.IsBusy() {
		return &errs.E{C: errs.Busy, Op: "coordinator.SetPosition"}
	}
	if c.store.IsAxisHomed(axis) {
		return c.Mdi(fmt.Sprintf("G92 %s%g", axisWord(axis), pos))
	}
	c.link.Enqueue(fmt.Sprintf("$%cp=%g", axis, pos))
	return nil
}

// Start resets the planner and begins executing path if non-empty, and
// enables writing so the firmware link starts draining blocks.
func (c *Coordinator) Start(path string) error {
	if path != "" {
		c.planner.Reset()
		if err := c.planner.Load(path); err != nil {
			return err
		}
	}
	c.link.EnableWrite()
	return nil
}

// Step issues a side-band STEP, and if the machine is idle and path is
// supplied, starts the program (single-block execution bootstrap).
func (c *Coordinator) Step(path string) error {
	if err := c.side.Step(); err != nil {
		return err
	}
	if !c.IsBusy() && path != "" && c.store.Get("x", state.Str("")).AsString() == MachineReady {
		return c.Start(path)
	}
	return nil
}

// Stop flushes the firmware's pending queue, resets the planner, and
// queues a resume so the firmware continues processing once its queue
// drains.
func (c *Coordinator) Stop() error {
	if err := c.side.Flush(); err != nil {
		return err
	}
	c.planner.Reset()
	c.link.Enqueue(string(codec.OpResume))
	return nil
}

// Pause issues a mandatory side-band pause. OptionalPause issues one
// that may be skipped if nothing is running.
func (c *Coordinator) Pause() error         { return c.side.Pause(false) }
func (c *Coordinator) OptionalPause() error { return c.side.Pause(true) }

// Unpause resumes a held machine: no-op unless the machine is HOLDING
// and the engine is running.
func (c *Coordinator) Unpause() error {
	if c.store.Get("x", state.Str("")).AsString() != MachineHolding || !c.planner.IsRunning() {
		return nil
	}
	if err := c.side.Flush(); err != nil {
		return err
	}
	c.link.Enqueue(string(codec.OpResume))
	c.planner.Restart(c.planner.LastID())
	c.link.EnableWrite()
	return c.side.Unpause()
}

// Estop and Clear issue their respective side-band commands.
func (c *Coordinator) Estop() error { return c.side.Estop() }
func (c *Coordinator) Clear() error { return c.side.Clear() }

func axisWord(axis byte) string { return strings.ToUpper(string(axis)) }
