package machineconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/buildbotics/bbctrl-motion/internal/state"
)

func TestUpdateEncodesMotorsByIndex(t *testing.T) {
	var sunk []struct {
		code string
		v    state.Value
	}
	sink := func(code string, v state.Value) {
		sunk = append(sunk, struct {
			code string
			v    state.Value
		}{code, v})
	}

	cfg := New(nil, sink, DefaultTemplate(), "")
	doc := map[string]any{
		"motors": []any{
			map[string]any{"axis": "z", "max-velocity": 12.5},
			map[string]any{"axis": "x"},
		},
	}
	cfg.Update(doc, false)

	want := map[string]state.Value{
		"0an": state.Int(2), // z
		"0vm": state.Float(12.5),
		"1an": state.Int(0), // x
	}
	got := map[string]state.Value{}
	for _, s := range sunk {
		got[s.code] = s.v
	}
	for code, v := range want {
		g, ok := got[code]
		if !ok {
			t.Fatalf("expected code %s to be encoded, got %v", code, got)
		}
		if !g.Equal(v) {
			t.Fatalf("code %s: got %v, want %v", code, g, v)
		}
	}
	if _, ok := got["1vm"]; ok {
		t.Fatal("expected max-velocity to be skipped for motor 1 without defaults")
	}
}

func TestUpdateWithDefaultsFillsMissingKeys(t *testing.T) {
	var codes []string
	sink := func(code string, v state.Value) { codes = append(codes, code) }

	cfg := New(nil, sink, DefaultTemplate(), "")
	cfg.Update(map[string]any{"motors": []any{map[string]any{}}}, true)

	foundVM := false
	for _, c := range codes {
		if c == "0vm" {
			foundVM = true
		}
	}
	if !foundVM {
		t.Fatal("expected with_defaults=true to encode the default max-velocity")
	}
}

func TestEncodeVarConvertsPercentAndBool(t *testing.T) {
	got := map[string]state.Value{}
	sink := func(code string, v state.Value) { got[code] = v }
	cfg := New(nil, sink, Template{
		"general": Category{
			"power-limit": {Code: "pl", Type: TypePercent},
			"enabled":     {Code: "en", Type: TypeBool},
		},
	}, "")

	cfg.Update(map[string]any{"general": map[string]any{"power-limit": 50.0, "enabled": true}}, false)

	if got["pl"].AsFloat() != 0.5 {
		t.Fatalf("expected 50%% to encode as 0.5, got %v", got["pl"])
	}
	if !got["en"].AsBool() {
		t.Fatal("expected enabled=true to pass through as bool true")
	}
}

func TestReloadUsesDiskDocumentOrEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"general":{"units":"IMPERIAL"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var units state.Value
	sink := func(code string, v state.Value) {
		if code == "units" {
			units = v
		}
	}
	cfg := New(nil, sink, DefaultTemplate(), path)
	cfg.Reload()

	if units.AsInt() != 1 {
		t.Fatalf("expected units to encode IMPERIAL as index 1, got %v", units)
	}
}

func TestReloadMissingDocumentUsesDefaults(t *testing.T) {
	var units state.Value
	sink := func(code string, v state.Value) {
		if code == "units" {
			units = v
		}
	}
	cfg := New(nil, sink, DefaultTemplate(), filepath.Join(t.TempDir(), "missing.json"))
	cfg.Reload()

	if units.AsInt() != 0 {
		t.Fatalf("expected default METRIC (index 0) when no document exists, got %v", units)
	}
}
