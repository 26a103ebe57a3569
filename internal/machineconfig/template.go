// Package machineconfig implements the template-driven machine
// configuration encoder (spec SPEC_FULL.md §4.H, grounded in
// Config.py): a static mapping from human-readable configuration keys
// to firmware variable codes, used to bulk re-encode the machine
// configuration document into `set` commands after each firmware
// handshake (state.Store.Reset does not trigger a re-encode).
package machineconfig

// VarType is a configuration value's wire encoding.
type VarType int

const (
	TypeFloat VarType = iota
	TypeBool
	TypePercent
	TypeEnum
)

// VarSpec describes one configuration key: its firmware variable code
// (indexed entries are prefixed with their index, e.g. "0vm"), its wire
// encoding, and a default used when a document omits the key.
type VarSpec struct {
	Code    string
	Type    VarType
	Default any
	Values  []string // enum only: ordered value names, encoded as their index
}

// Category is one section's key -> spec mapping (the original's nested
// category layer is flattened: this module has no need for the extra
// grouping, since every key's spec is self-describing).
type Category map[string]VarSpec

// Template maps a configuration document's top-level section name to
// its keys. The "motors" section is special: the document's "motors"
// value is an array, one Category application per element, indexed.
type Template map[string]Category

const motorCount = 6

// DefaultTemplate is this module's built-in template, covering the
// motor variables the State Store and Planner Adapter already read
// (axis assignment, power mode, homing mode, velocity/accel/jerk
// limits) and the general machine-wide units setting.
func DefaultTemplate() Template {
	return Template{
		"motors": Category{
			"axis":          {Code: "an", Type: TypeEnum, Values: []string{"x", "y", "z", "a", "b", "c"}, Default: "x"},
			"power-mode":    {Code: "pm", Type: TypeBool, Default: true},
			"homing-mode":   {Code: "ho", Type: TypeEnum, Values: []string{"manual", "switch-min", "switch-max"}, Default: "manual"},
			"max-velocity":  {Code: "vm", Type: TypeFloat, Default: 0.0},
			"max-accel":     {Code: "am", Type: TypeFloat, Default: 0.0},
			"max-jerk":      {Code: "jm", Type: TypeFloat, Default: 0.0},
			"latch-backoff": {Code: "lb", Type: TypeFloat, Default: 0.0},
			"zero-backoff":  {Code: "zb", Type: TypeFloat, Default: 0.0},
		},
		"general": Category{
			"units": {Code: "units", Type: TypeEnum, Values: []string{"METRIC", "IMPERIAL"}, Default: "METRIC"},
		},
	}
}
