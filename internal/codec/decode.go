package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/buildbotics/bbctrl-motion/internal/errs"
)

// DecodeLine parses the output of EncodeLine back into a LineBlock.
// Used by the round-trip test in spec §8; not used on the live wire
// (the host only ever writes line blocks, never reads them back).
func DecodeLine(s string) (LineBlock, error) {
	var b LineBlock
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return b, &errs.E{C: errs.Protocol, Op: "codec.DecodeLine", Msg: "missing id prefix"}
	}
	idPart, rest := s[:nl], s[nl+1:]
	if _, err := fmt.Sscanf(idPart, "#id=%d", &b.ID); err != nil {
		return b, &errs.E{C: errs.Protocol, Op: "codec.DecodeLine", Err: err}
	}
	if len(rest) == 0 || rest[0] != byte(OpLine) {
		return b, &errs.E{C: errs.Protocol, Op: "codec.DecodeLine", Msg: "missing line opcode"}
	}
	rest = rest[1:]

	read6 := func() (float32, error) {
		if len(rest) < 6 {
			return 0, &errs.E{C: errs.Protocol, Op: "codec.DecodeLine", Msg: "truncated float6"}
		}
		v, err := DecodeFloat6(rest[:6])
		rest = rest[6:]
		return v, err
	}

	var err error
	if b.ExitVel, err = read6(); err != nil {
		return b, err
	}
	if b.MaxAccel, err = read6(); err != nil {
		return b, err
	}
	if b.MaxJerk, err = read6(); err != nil {
		return b, err
	}

	b.Target = make(map[byte]float32)
	for len(rest) > 0 && strings.IndexByte(axisOrder, rest[0]) >= 0 {
		axis := rest[0]
		rest = rest[1:]
		v, err := read6()
		if err != nil {
			return b, err
		}
		b.Target[axis] = v
	}

	for len(rest) > 0 {
		if rest[0] < '0' || rest[0] > '6' {
			return b, &errs.E{C: errs.Protocol, Op: "codec.DecodeLine", Msg: "invalid segment digit"}
		}
		idx := int(rest[0] - '0')
		rest = rest[1:]
		v, err := read6()
		if err != nil {
			return b, err
		}
		b.Times[idx] = v * 60000
	}

	return b, nil
}

// DecodeDwell parses the output of Dwell.
func DecodeDwell(s string) (float32, error) {
	if len(s) == 0 || s[0] != byte(OpDwell) {
		return 0, &errs.E{C: errs.Protocol, Op: "codec.DecodeDwell", Msg: "missing dwell opcode"}
	}
	return DecodeFloat6(s[1:])
}

// DecodeJog parses the output of Jog.
func DecodeJog(s string) (map[byte]float32, error) {
	if len(s) == 0 || s[0] != byte(OpJog) {
		return nil, &errs.E{C: errs.Protocol, Op: "codec.DecodeJog", Msg: "missing jog opcode"}
	}
	rest := s[1:]
	out := make(map[byte]float32)
	for len(rest) > 0 {
		if strings.IndexByte(axisOrder, rest[0]) < 0 {
			return nil, &errs.E{C: errs.Protocol, Op: "codec.DecodeJog", Msg: "unexpected axis byte"}
		}
		axis := rest[0]
		rest = rest[1:]
		if len(rest) < 6 {
			return nil, &errs.E{C: errs.Protocol, Op: "codec.DecodeJog", Msg: "truncated float6"}
		}
		v, err := DecodeFloat6(rest[:6])
		if err != nil {
			return nil, err
		}
		rest = rest[6:]
		out[axis] = v
	}
	return out, nil
}

// DecodeOutput parses the output of Output back into (name, on).
func DecodeOutput(s string) (name string, on bool, err error) {
	switch {
	case strings.HasPrefix(s, "#1oa="):
		name, s = outputMist, s[len("#1oa="):]
	case strings.HasPrefix(s, "#2oa="):
		name, s = outputFlood, s[len("#2oa="):]
	default:
		return "", false, &errs.E{C: errs.UnsupportedPort, Op: "codec.DecodeOutput", Msg: s}
	}
	switch s {
	case "0":
		return name, false, nil
	case "1":
		return name, true, nil
	default:
		return "", false, &errs.E{C: errs.Protocol, Op: "codec.DecodeOutput", Msg: s}
	}
}

// DecodeSeek parses the output of Seek.
func DecodeSeek(s string) (sw Switch, active, treatMissAsError bool, err error) {
	if len(s) != 3 || s[0] != byte(OpSeek) {
		return 0, false, false, &errs.E{C: errs.Protocol, Op: "codec.DecodeSeek", Msg: s}
	}
	n, perr := strconv.ParseUint(s[1:2], 16, 8)
	if perr != nil {
		return 0, false, false, &errs.E{C: errs.Protocol, Op: "codec.DecodeSeek", Err: perr}
	}
	flags := s[2] - '0'
	return Switch(n), flags&seekFlagActive != 0, flags&seekFlagTreatError != 0, nil
}

// DecodeLines splits a buffered read into trimmed, non-blank lines,
// mirroring the Firmware Link read path's line accumulation (§4.C).
func DecodeLines(buf []byte) []string {
	var out []string
	for _, raw := range strings.Split(string(buf), "\n") {
		line := strings.TrimSpace(raw)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
