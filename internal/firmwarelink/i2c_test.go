package firmwarelink

import "testing"

type fakeI2CBus struct {
	fail    int // number of initial Tx calls to fail
	calls   [][]byte
	closed  int
}

func (b *fakeI2CBus) Tx(addr uint16, w, r []byte) error {
	b.calls = append(b.calls, append([]byte(nil), w...))
	if b.fail > 0 {
		b.fail--
		return errTransient
	}
	return nil
}

func (b *fakeI2CBus) Close() error { b.closed++; return nil }

type transientErr string

func (e transientErr) Error() string { return string(e) }

var errTransient = transientErr("transient i2c error")

func TestSideBandRetriesOnFailure(t *testing.T) {
	bus := &fakeI2CBus{fail: 2}
	sb := NewSideBand(nil, 0x2d, func() (I2CBus, error) { return bus, nil })

	if err := sb.Estop(); err != nil {
		t.Fatalf("expected Estop to succeed after retries, got %v", err)
	}
	if len(bus.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(bus.calls))
	}
	if bus.calls[0][0] != 'E' {
		t.Fatalf("expected first byte 'E', got %q", bus.calls[0][0])
	}
}

func TestSideBandFailsAfterExhaustingRetries(t *testing.T) {
	bus := &fakeI2CBus{fail: 100}
	sb := NewSideBand(nil, 0x2d, func() (I2CBus, error) { return bus, nil })

	err := sb.Flush()
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if len(bus.calls) != sideBandRetries {
		t.Fatalf("expected %d attempts, got %d", sideBandRetries, len(bus.calls))
	}
}

func TestSideBandPauseEncodesOptionalByte(t *testing.T) {
	bus := &fakeI2CBus{}
	sb := NewSideBand(nil, 0x2d, func() (I2CBus, error) { return bus, nil })

	if err := sb.Pause(true); err != nil {
		t.Fatal(err)
	}
	if len(bus.calls[0]) != 2 || bus.calls[0][1] != 1 {
		t.Fatalf("expected payload byte 1 for optional pause, got %v", bus.calls[0])
	}
}
