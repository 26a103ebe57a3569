package codec

import (
	"fmt"
	"strings"

	"github.com/buildbotics/bbctrl-motion/internal/errs"
)

// LineBlock is a single planned motion segment (spec §4.B "line").
type LineBlock struct {
	ID                         uint32
	ExitVel, MaxAccel, MaxJerk float32
	Target                     map[byte]float32 // axis -> target position
	Times                      [7]float32        // ms; zero entries are omitted
}

// EncodeLine renders a line block as "#id=<u>\n" followed by the
// "l"-prefixed payload: float6 exit-vel, max-accel, max-jerk, then each
// present axis as "<axis><float6>", then each non-zero s-curve time
// segment as "<digit><float6>" (time expressed in minutes).
func EncodeLine(b LineBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#id=%d\n", b.ID)
	sb.WriteByte(byte(OpLine))
	sb.WriteString(EncodeFloat6(b.ExitVel))
	sb.WriteString(EncodeFloat6(b.MaxAccel))
	sb.WriteString(EncodeFloat6(b.MaxJerk))
	for i := 0; i < len(axisOrder); i++ {
		axis := axisOrder[i]
		if v, ok := b.Target[axis]; ok {
			sb.WriteByte(axis)
			sb.WriteString(EncodeFloat6(v))
		}
	}
	for i, t := range b.Times {
		if t == 0 {
			continue
		}
		minutes := t / 60000
		fmt.Fprintf(&sb, "%d%s", i, EncodeFloat6(minutes))
	}
	return sb.String()
}

// LineNumber renders the planner-assigned line number set command
// ("set" block name "line" per §4.D block->wire encoding).
func LineNumber(n int64) string { return fmt.Sprintf("#ln=%d", n) }

// Tool renders the active tool number ("#t=<i>").
func Tool(id int64) string { return fmt.Sprintf("#t=%d", id) }

// Speed renders the active spindle/feed speed ("#s=:<float6>").
func Speed(v float32) string { return "#s=:" + EncodeFloat6(v) }

// SetPosition renders an axis position assignment ("#<axis>p=:<float6>").
func SetPosition(axis byte, pos float32) string {
	return fmt.Sprintf("#%cp=:%s", axis, EncodeFloat6(pos))
}

// SetAsync renders an unsynchronized state assignment ("$name=value\n").
func SetAsync(name, value string) string { return fmt.Sprintf("$%s=%s\n", name, value) }

const (
	outputMist  = "mist"
	outputFlood = "flood"
)

// Output renders a mist/flood digital output command. Any other port
// name is rejected with errs.UnsupportedPort.
func Output(name string, on bool) (string, error) {
	bit := "0"
	if on {
		bit = "1"
	}
	switch name {
	case outputMist:
		return "#1oa=" + bit, nil
	case outputFlood:
		return "#2oa=" + bit, nil
	default:
		return "", &errs.E{C: errs.UnsupportedPort, Op: "codec.Output", Msg: name}
	}
}

// Dwell renders a pause for the given number of seconds ("d<float6>").
func Dwell(seconds float32) string { return string(OpDwell) + EncodeFloat6(seconds) }

// Jog renders continuous per-axis jog velocities ("j<axis><float6>...").
func Jog(target map[byte]float32) string {
	var sb strings.Builder
	sb.WriteByte(byte(OpJog))
	for i := 0; i < len(axisOrder); i++ {
		axis := axisOrder[i]
		if v, ok := target[axis]; ok {
			sb.WriteByte(axis)
			sb.WriteString(EncodeFloat6(v))
		}
	}
	return sb.String()
}

// Seek renders a probing move toward the given switch. active selects
// the switch level sought; treatMissAsError sets the "miss is an error"
// flag.
func Seek(sw Switch, active, treatMissAsError bool) string {
	var flags byte
	if active {
		flags |= seekFlagActive
	}
	if treatMissAsError {
		flags |= seekFlagTreatError
	}
	return fmt.Sprintf("%c%x%c", OpSeek, byte(sw), '0'+flags)
}

// Pause renders a side-band pause request; optional selects whether the
// pause is mandatory (false) or may be skipped if nothing is running
// (true) — see the Motion Coordinator's pause()/optional_pause().
func Pause(optional bool) string {
	b := byte(0)
	if optional {
		b = 1
	}
	return string(OpPause) + string(rune(b))
}

// Single-byte, no-payload side-band commands.
func Unpause() string { return string(OpUnpause) }
func Estop() string   { return string(OpEstop) }
func Clear() string   { return string(OpClear) }
func Flush() string   { return string(OpFlush) }
func Step() string    { return string(OpStep) }
func Resume() string  { return string(OpResume) }
func Report() string  { return string(OpReport) }
