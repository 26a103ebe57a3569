package state

import "strconv"

// Homing modes, derived from the firmware's <m>ho variable.
const (
	HomingManual    = 0
	HomingSwitchMin = 1
	HomingSwitchMax = 2
)

// MotorEnabled reports whether motor m is power-enabled (<m>pm).
func (s *Store) MotorEnabled(m int) bool {
	return s.Get(strconv.Itoa(m)+"pm", Bool(false)).AsBool()
}

// MotorHomingMode returns motor m's homing mode, derived from <m>ho.
func (s *Store) MotorHomingMode(m int) int {
	return int(s.Get(strconv.Itoa(m)+"ho", Int(HomingManual)).AsInt())
}

// MotorHomeDirection returns -1, +1 or 0 for switch-min, switch-max or
// manual/disabled homing modes respectively.
func (s *Store) MotorHomeDirection(m int) int {
	switch s.MotorHomingMode(m) {
	case HomingSwitchMin:
		return -1
	case HomingSwitchMax:
		return 1
	default:
		return 0
	}
}

// MotorHomePosition returns <m>tn for switch-min, <m>tm for switch-max,
// and 0 for manual/disabled homing modes.
func (s *Store) MotorHomePosition(m int) float64 {
	switch s.MotorHomingMode(m) {
	case HomingSwitchMin:
		return s.Get(strconv.Itoa(m)+"tn", Float(0)).AsFloat()
	case HomingSwitchMax:
		return s.Get(strconv.Itoa(m)+"tm", Float(0)).AsFloat()
	default:
		return 0
	}
}

// IsAxisEnabled reports whether some motor currently claims axis.
func (s *Store) IsAxisEnabled(axis byte) bool {
	_, ok := s.FindMotor(axis)
	return ok
}

// IsAxisHomed reports whether the motor claiming axis is homed. An axis
// with no claiming motor is never homed.
func (s *Store) IsAxisHomed(axis byte) bool {
	m, ok := s.FindMotor(axis)
	if !ok {
		return false
	}
	return s.Get(strconv.Itoa(m)+"homed", Bool(false)).AsBool()
}

// AxisHomingMode returns the homing mode of the motor claiming axis, or
// HomingManual if no motor claims it.
func (s *Store) AxisHomingMode(axis byte) int {
	m, ok := s.FindMotor(axis)
	if !ok {
		return HomingManual
	}
	return s.MotorHomingMode(m)
}

// AxisHomeFailReason explains why axis cannot currently be homed, or
// returns "" if it can. This is derived state supporting home()'s
// "skip axes that cannot be homed" behavior.
func (s *Store) AxisHomeFailReason(axis byte) string {
	m, ok := s.FindMotor(axis)
	if !ok {
		return "no motor mapped to this axis"
	}
	if !s.MotorEnabled(m) {
		return "motor disabled"
	}
	if s.MotorHomingMode(m) == HomingManual {
		return "homing mode is manual"
	}
	return ""
}

// AxisCanHome reports whether axis currently has a usable homing
// configuration.
func (s *Store) AxisCanHome(axis byte) bool {
	return s.AxisHomeFailReason(axis) == ""
}
