// Package errs provides the motion coordinator's stable, typed error
// taxonomy, so semantic failures (busy, unsupported, invalid mode...)
// can be matched on by callers and tests without string comparison.
package errs

// Code is a stable error identifier. It is a string newtype, comparable,
// allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (spec.md §7 taxonomy).
const (
	OK Code = "ok"

	// Semantic failures: surfaced to the caller, state is not mutated.
	Busy              Code = "busy"
	InvalidMode       Code = "invalid_mode"
	UnsupportedPort   Code = "unsupported_port"
	UnknownSwitch     Code = "unknown_switch"
	UnknownBlockType  Code = "unknown_block_type"
	InvalidParams     Code = "invalid_params"
	UnrecognizedHomingMode Code = "unrecognized_homing_mode"

	// Transport: retried with bounded backoff, fatal after retries exhaust.
	Transport Code = "transport"
	Timeout   Code = "timeout"

	// Protocol: malformed wire data, logged and skipped, never fatal.
	Protocol Code = "protocol"

	// Handshake: machine_cmds_and_vars failed, reconnect scheduled.
	HandshakeFailed Code = "handshake_failed"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a stable Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" && msg != "" {
		return e.Op + ": " + msg + " (" + string(e.C) + ")"
	}
	if msg != "" {
		return msg + " (" + string(e.C) + ")"
	}
	return string(e.C)
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E with the given code, operation and message.
func New(c Code, op, msg string) *E { return &E{C: c, Op: op, Msg: msg} }

// Wrap builds an *E around a cause, classified with the given code.
func Wrap(c Code, op string, err error) *E { return &E{C: c, Op: op, Err: err} }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}
