// Package codec implements the firmware wire protocol (spec §4.B):
// ASCII commands with binary floats embedded as base64, padding
// stripped, of little-endian IEEE-754 binary32 values ("float6").
package codec

import (
	"encoding/base64"
	"fmt"
	"math"

	"github.com/buildbotics/bbctrl-motion/internal/errs"
)

// Command alphabet (single ASCII leading byte).
const (
	OpSetAsync Op = '$'
	OpSetSync  Op = '#'
	OpSeek     Op = 's'
	OpLine     Op = 'l'
	OpReport   Op = 'r'
	OpPause    Op = 'P'
	OpUnpause  Op = 'U'
	OpEstop    Op = 'E'
	OpClear    Op = 'C'
	OpFlush    Op = 'F'
	OpStep     Op = 'S'
	OpResume   Op = 'c'
	OpDwell    Op = 'd'
	OpJog      Op = 'j'
)

// Op is the single-byte command discriminator.
type Op byte

// Switch ids for seek (§4.B).
const (
	SwitchProbe Switch = 1
	SwitchXMin  Switch = 2
	SwitchXMax  Switch = 3
	SwitchYMin  Switch = 4
	SwitchYMax  Switch = 5
	SwitchZMin  Switch = 6
	SwitchZMax  Switch = 7
	SwitchAMin  Switch = 8
	SwitchAMax  Switch = 9
)

// Switch identifies a limit/probe switch sought by a seek command.
type Switch byte

var switchNames = map[string]Switch{
	"probe": SwitchProbe,
	"x-min": SwitchXMin, "x-max": SwitchXMax,
	"y-min": SwitchYMin, "y-max": SwitchYMax,
	"z-min": SwitchZMin, "z-max": SwitchZMax,
	"a-min": SwitchAMin, "a-max": SwitchAMax,
}

// SwitchByName resolves a switch by its spec-documented name.
func SwitchByName(name string) (Switch, error) {
	sw, ok := switchNames[name]
	if !ok {
		return 0, &errs.E{C: errs.UnknownSwitch, Op: "codec.SwitchByName", Msg: name}
	}
	return sw, nil
}

// seek flag bits.
const (
	seekFlagActive     = 1 << 0
	seekFlagTreatError = 1 << 1
)

// axisOrder fixes iteration order for per-axis payloads so encoding is
// deterministic.
const axisOrder = "xyzabc"

// float6Enc/float6Dec implement the 6-character base64 float32 codec.
// base64.RawURLEncoding of exactly 4 bytes always yields 6 characters
// with no padding, matching spec's "always 6 characters".
var float6Enc = base64.RawURLEncoding

// EncodeFloat6 renders f as 6 base64 characters.
func EncodeFloat6(f float32) string {
	var buf [4]byte
	bits := math.Float32bits(f)
	buf[0] = byte(bits)
	buf[1] = byte(bits >> 8)
	buf[2] = byte(bits >> 16)
	buf[3] = byte(bits >> 24)
	return float6Enc.EncodeToString(buf[:])
}

// DecodeFloat6 parses 6 base64 characters into a float32.
func DecodeFloat6(s string) (float32, error) {
	if len(s) != 6 {
		return 0, &errs.E{C: errs.Protocol, Op: "codec.DecodeFloat6", Msg: fmt.Sprintf("want 6 chars, got %d", len(s))}
	}
	b, err := float6Enc.DecodeString(s)
	if err != nil || len(b) != 4 {
		return 0, &errs.E{C: errs.Protocol, Op: "codec.DecodeFloat6", Err: err}
	}
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits), nil
}
