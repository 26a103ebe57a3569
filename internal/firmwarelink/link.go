// Package firmwarelink implements the bidirectional pipe to the motion
// firmware: a serial command pipeline interleaving a priority queue with
// on-demand planned blocks, and an I2C side-band for latency-sensitive
// control (spec §4.C, §5, §6.1, §6.2).
package firmwarelink

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/buildbotics/bbctrl-motion/internal/errs"
)

// SerialPort is the subset of go.bug.st/serial.Port the link needs;
// go.bug.st/serial.Port satisfies it directly.
type SerialPort interface {
	io.Reader
	io.Writer
	Close() error
}

// BlockSource supplies on-demand planned motion blocks, already encoded
// to wire bytes. *planner.Adapter satisfies this.
type BlockSource interface {
	IsRunning() bool
	Next() (wire string, ok bool)
}

// Link owns the serial port exclusively (spec §5 "shared resources").
// Its write/read paths are driven by the single-threaded event loop;
// it takes no internal locks.
type Link struct {
	log *logrus.Entry

	port SerialPort

	blocks BlockSource

	writeEnable bool
	queue       [][]byte // FIFO of not-yet-sent priority commands
	current     []byte   // remaining bytes of the in-flight command

	readBuf []byte

	// StopHook, if set, is invoked at the start of Connect to apply the
	// coordinator's stop semantics (spec §4.C "Connect procedure"). The
	// composition root wires this to Coordinator.Stop, avoiding a
	// firmwarelink->coordinator import cycle.
	StopHook func()

	// OnHandshake is invoked with a decoded firmware handshake payload.
	OnHandshake func(raw map[string]any) error

	// OnTelemetry is invoked with a merged batch of telemetry deltas
	// accumulated from one read, after reboot detection.
	OnTelemetry func(delta map[string]any)

	// OnReboot is invoked when a telemetry batch contains `firmware`,
	// signaling the AVR has rebooted and must be re-handshaken.
	OnReboot func()

	// OnHandshakeFailed is invoked when OnHandshake returns an error, in
	// place of queuing the 'D' refresh. Neither the Link nor bbctrld's
	// handler (which only logs) schedules a Connect retry on this path.
	OnHandshakeFailed func()
}

// New constructs a Link. blocks supplies on-demand planned motion
// blocks; port is nil until Open is called.
func New(log *logrus.Entry, blocks BlockSource) *Link {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Link{log: log.WithField("component", "firmwarelink"), blocks: blocks}
}

// Attach binds an already-opened serial port (used by Open and by tests
// with a fake port).
func (l *Link) Attach(port SerialPort) { l.port = port }

// IsOpen reports whether a port is currently attached.
func (l *Link) IsOpen() bool { return l.port != nil }

// Read proxies to the underlying port, for the event loop's poll.
func (l *Link) Read(buf []byte) (int, error) {
	if l.port == nil {
		return 0, &errs.E{C: errs.Transport, Op: "firmwarelink.Read", Msg: "port not open"}
	}
	return l.port.Read(buf)
}

// Close releases the serial port.
func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.readBuf = nil
	l.current = nil
	return err
}

// Enqueue appends a priority command and enables writing (spec §4.C,
// §8 "enqueuing any command flips write-enable within the same turn").
func (l *Link) Enqueue(cmd string) {
	l.queue = append(l.queue, []byte(cmd))
	l.writeEnable = true
}

// WriteEnabled reports whether the link currently wants to be scheduled
// for writing.
func (l *Link) WriteEnabled() bool { return l.writeEnable }

// EnableWrite flips write-enable without enqueuing a command, used when
// the coordinator starts MDI/gcode execution (spec §4.E mdi/start).
func (l *Link) EnableWrite() { l.writeEnable = true }

// WriteReady is called by the event loop when the port is writable. It
// implements the write-path cascade of §4.C:
//  1. flush the partially-sent current command;
//  2. else dequeue one priority command;
//  3. else draw one encoded block from the planner if it is running;
//  4. else clear write-enable.
func (l *Link) WriteReady() error {
	if len(l.current) > 0 {
		return l.flushCurrent()
	}

	if len(l.queue) > 0 {
		cmd := l.queue[0]
		l.queue = l.queue[1:]
		l.current = append(cmd, '\n')
		return l.flushCurrent()
	}

	if l.blocks != nil && l.blocks.IsRunning() {
		wire, ok := l.blocks.Next()
		if !ok {
			l.writeEnable = false
			return nil
		}
		l.current = append([]byte(wire), '\n')
		return l.flushCurrent()
	}

	l.writeEnable = false
	return nil
}

func (l *Link) flushCurrent() error {
	if l.port == nil {
		return &errs.E{C: errs.Transport, Op: "firmwarelink.WriteReady", Msg: "port not open"}
	}
	n, err := l.port.Write(l.current)
	if n > 0 {
		l.current = l.current[n:]
	}
	if err != nil {
		l.writeEnable = false
		return &errs.E{C: errs.Transport, Op: "firmwarelink.WriteReady", Err: err}
	}
	return nil
}
