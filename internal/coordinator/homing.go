package coordinator

import "strings"

// homingTemplate is the parameterized homing sub-program (spec §6.5):
// mark unhomed, fast seek toward the limit switch, back off at latch
// velocity, slow seek onto the switch, rapid to zero-backoff, record
// home position. "A" is the axis placeholder, substituted uniformly.
const homingTemplate = "G28.2 A0 F[#<_A_sv>]\n" +
	"G38.6 A[#<_A_hd> * [#<_A_tm> - #<_A_tn>] * 1.5]\n" +
	"G38.8 A[#<_A_hd> * -#<_A_lb>] F[#<_A_lv>]\n" +
	"G38.6 A[#<_A_hd> * #<_A_lb> * 1.5]\n" +
	"G91 G0 G53 A[#<_A_hd> * -#<_A_zb>]\n" +
	"G90 G28.3 A[#<_A_hp>]"

// expandHomingTemplate substitutes the axis placeholder with axis's
// G-code word (uppercase, the engine's variable resolver lowercases
// variable names before consulting the State Store).
func expandHomingTemplate(axis byte) string {
	return strings.ReplaceAll(homingTemplate, "A", axisWord(axis))
}
