package firmwarelink

import (
	"time"

	"go.bug.st/serial"

	"github.com/buildbotics/bbctrl-motion/internal/errs"
)

const reconnectDelay = time.Second

// Open opens the serial device at baud with the RTS/CTS flow control and
// nonblocking-style timeouts the firmware link needs (AVR.py opens with
// rtscts=1, timeout=0, write_timeout=0). Attaches the resulting port.
func (l *Link) Open(device string, baud int) error {
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(device, mode)
	if err != nil {
		return &errs.E{C: errs.Transport, Op: "firmwarelink.Open", Err: err}
	}
	if err := port.SetRTS(true); err != nil {
		_ = port.Close()
		return &errs.E{C: errs.Transport, Op: "firmwarelink.Open", Err: err}
	}
	// A zero read timeout makes Read return immediately with whatever is
	// available, matching the firmware poll loop's nonblocking reads.
	if err := port.SetReadTimeout(0); err != nil {
		_ = port.Close()
		return &errs.E{C: errs.Transport, Op: "firmwarelink.Open", Err: err}
	}
	l.Attach(port)
	return nil
}

// Connect implements the connect procedure (§4.C): apply stop semantics,
// then queue a handshake request ('h'). Callers schedule a retry after
// reconnectDelay on any error, mirroring AVR.py's connect()/except path.
func (l *Link) Connect() error {
	if l.StopHook != nil {
		l.StopHook()
	}
	l.Enqueue("h")
	return nil
}

// ScheduleReconnect arms a one-shot timer that calls Connect after the
// standard 1s reconnect delay, logging (not propagating) any error.
func (l *Link) ScheduleReconnect() *time.Timer {
	return time.AfterFunc(reconnectDelay, func() {
		if err := l.Connect(); err != nil {
			l.log.WithError(err).Error("reconnect attempt failed")
		}
	})
}
