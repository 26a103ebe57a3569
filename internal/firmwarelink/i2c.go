package firmwarelink

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/buildbotics/bbctrl-motion/internal/codec"
	"github.com/buildbotics/bbctrl-motion/internal/errs"
)

// I2CBus is the subset of periph.io/x/conn/v3/i2c.Bus the side-band
// needs; i2c.Dev{Bus: ...}.Tx or a raw i2c.Bus both satisfy it.
type I2CBus interface {
	Tx(addr uint16, w, r []byte) error
}

const (
	sideBandRetries = 5
	sideBandBackoff = 100 * time.Millisecond
)

// SideBand is the I2C out-of-band control channel (spec §4.C, §6.2):
// single-register writes for estop/clear/flush/step/pause/unpause. The
// bus is shared with a power monitor outside this module's scope; after
// a failed transfer command drops the bus handle and ensureBus reopens
// it through openBus on the next attempt.
type SideBand struct {
	log  *logrus.Entry
	addr uint16

	openBus func() (I2CBus, error)
	bus     I2CBus
}

// NewSideBand constructs a SideBand. openBus lazily (re)opens the I2C
// bus handle, mirroring I2C.py's connect()/reopen-on-IOError semantics.
func NewSideBand(log *logrus.Entry, addr uint16, openBus func() (I2CBus, error)) *SideBand {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SideBand{log: log.WithField("component", "i2c"), addr: addr, openBus: openBus}
}

func (s *SideBand) ensureBus() (I2CBus, error) {
	if s.bus != nil {
		return s.bus, nil
	}
	bus, err := s.openBus()
	if err != nil {
		return nil, err
	}
	s.bus = bus
	return bus, nil
}

// command transmits op, optionally followed by payload, making at most
// sideBandRetries attempts at sideBandBackoff spacing (§4.C). On any I/O
// error the bus handle is closed (if closeable) and reopened on the next
// attempt.
func (s *SideBand) command(op byte, payload []byte) error {
	w := append([]byte{op}, payload...)

	var lastErr error
	for attempt := 0; attempt < sideBandRetries; attempt++ {
		bus, err := s.ensureBus()
		if err != nil {
			lastErr = err
		} else if err := bus.Tx(s.addr, w, nil); err != nil {
			lastErr = err
			if closer, ok := bus.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
			s.bus = nil
		} else {
			return nil
		}
		if attempt < sideBandRetries-1 {
			time.Sleep(sideBandBackoff)
		}
	}
	return &errs.E{C: errs.Transport, Op: "firmwarelink.SideBand", Err: lastErr}
}

func (s *SideBand) Estop() error   { return s.command(byte(codec.OpEstop), nil) }
func (s *SideBand) Clear() error   { return s.command(byte(codec.OpClear), nil) }
func (s *SideBand) Flush() error   { return s.command(byte(codec.OpFlush), nil) }
func (s *SideBand) Step() error    { return s.command(byte(codec.OpStep), nil) }
func (s *SideBand) Unpause() error { return s.command(byte(codec.OpUnpause), nil) }

// Pause requests a side-band pause; optional selects whether it may be
// skipped if nothing is running.
func (s *SideBand) Pause(optional bool) error {
	b := byte(0)
	if optional {
		b = 1
	}
	return s.command(byte(codec.OpPause), []byte{b})
}
