package codec

import (
	"math"
	"testing"
)

const float6Eps = 1e-6 // ~2^-23 relative precision of binary32

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) <= float6Eps*math.Max(1, math.Abs(float64(b)))
}

func TestFloat6RoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 100.0, 1000.0, 50000.0, 3.14159, -0.0001} {
		enc := EncodeFloat6(v)
		if len(enc) != 6 {
			t.Fatalf("EncodeFloat6(%v) = %q, want 6 chars", v, enc)
		}
		dec, err := DecodeFloat6(enc)
		if err != nil {
			t.Fatalf("DecodeFloat6(%q) error: %v", enc, err)
		}
		if !almostEqual(dec, v) {
			t.Fatalf("round trip %v -> %q -> %v", v, enc, dec)
		}
	}
}

func TestEncodeLineMatchesSpecExample(t *testing.T) {
	// spec.md §8 scenario 1.
	b := LineBlock{
		ID:       7,
		ExitVel:  100.0,
		MaxAccel: 1000.0,
		MaxJerk:  50000.0,
		Target:   map[byte]float32{'x': 10.0, 'y': 0.0},
		Times:    [7]float32{0, 60000, 0, 0, 0, 0, 0},
	}
	got := EncodeLine(b)
	want := "#id=7\n" + "l" +
		EncodeFloat6(100.0) + EncodeFloat6(1000.0) + EncodeFloat6(50000.0) +
		"x" + EncodeFloat6(10.0) + "y" + EncodeFloat6(0.0) +
		"1" + EncodeFloat6(1.0)
	if got != want {
		t.Fatalf("EncodeLine mismatch:\n got  %q\n want %q", got, want)
	}
}

func TestLineRoundTrip(t *testing.T) {
	b := LineBlock{
		ID:       42,
		ExitVel:  12.5,
		MaxAccel: 500,
		MaxJerk:  20000,
		Target:   map[byte]float32{'x': 1, 'z': -2.5},
		Times:    [7]float32{0, 1000, 0, 2000, 0, 0, 500},
	}
	enc := EncodeLine(b)
	dec, err := DecodeLine(enc)
	if err != nil {
		t.Fatalf("DecodeLine error: %v", err)
	}
	if dec.ID != b.ID {
		t.Fatalf("ID mismatch: got %d want %d", dec.ID, b.ID)
	}
	if !almostEqual(dec.ExitVel, b.ExitVel) || !almostEqual(dec.MaxAccel, b.MaxAccel) || !almostEqual(dec.MaxJerk, b.MaxJerk) {
		t.Fatalf("scalar mismatch: %+v vs %+v", dec, b)
	}
	for axis, v := range b.Target {
		if !almostEqual(dec.Target[axis], v) {
			t.Fatalf("target[%c] mismatch: got %v want %v", axis, dec.Target[axis], v)
		}
	}
	for i := range b.Times {
		if !almostEqual(dec.Times[i], b.Times[i]) {
			t.Fatalf("times[%d] mismatch: got %v want %v", i, dec.Times[i], b.Times[i])
		}
	}
}

func TestDwellRoundTrip(t *testing.T) {
	enc := Dwell(2.5)
	dec, err := DecodeDwell(enc)
	if err != nil {
		t.Fatalf("DecodeDwell error: %v", err)
	}
	if !almostEqual(dec, 2.5) {
		t.Fatalf("got %v want 2.5", dec)
	}
}

func TestJogRoundTrip(t *testing.T) {
	target := map[byte]float32{'x': 1, 'y': -1, 'a': 0.5}
	enc := Jog(target)
	dec, err := DecodeJog(enc)
	if err != nil {
		t.Fatalf("DecodeJog error: %v", err)
	}
	for axis, v := range target {
		if !almostEqual(dec[axis], v) {
			t.Fatalf("jog[%c] mismatch: got %v want %v", axis, dec[axis], v)
		}
	}
}

func TestOutputRoundTrip(t *testing.T) {
	enc, err := Output("mist", true)
	if err != nil {
		t.Fatal(err)
	}
	name, on, err := DecodeOutput(enc)
	if err != nil || name != "mist" || !on {
		t.Fatalf("got name=%q on=%v err=%v", name, on, err)
	}

	if _, err := Output("laser", true); err == nil {
		t.Fatal("expected UnsupportedPort error for unknown output port")
	}
}

func TestSeekRoundTrip(t *testing.T) {
	enc := Seek(SwitchZMin, true, true)
	sw, active, treatErr, err := DecodeSeek(enc)
	if err != nil {
		t.Fatalf("DecodeSeek error: %v", err)
	}
	if sw != SwitchZMin || !active || !treatErr {
		t.Fatalf("got sw=%d active=%v treatErr=%v", sw, active, treatErr)
	}
}

func TestSwitchByName(t *testing.T) {
	sw, err := SwitchByName("z-min")
	if err != nil || sw != SwitchZMin {
		t.Fatalf("got sw=%d err=%v", sw, err)
	}
	if _, err := SwitchByName("bogus"); err == nil {
		t.Fatal("expected error for unknown switch name")
	}
}

func TestDecodeLinesTrimsAndSkipsBlank(t *testing.T) {
	lines := DecodeLines([]byte("  {\"a\":1}  \n\n{\"b\":2}\n"))
	if len(lines) != 2 || lines[0] != `{"a":1}` || lines[1] != `{"b":2}` {
		t.Fatalf("got %#v", lines)
	}
}
