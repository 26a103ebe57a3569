package machineconfig

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/buildbotics/bbctrl-motion/internal/mathx"
	"github.com/buildbotics/bbctrl-motion/internal/state"
)

// ConfigSink receives an encoded (code, value) pair, the same contract
// as state.Store.Config: it routes to the firmware if code names a
// machine variable, otherwise it's a plain local write.
type ConfigSink func(code string, v state.Value)

// Config holds the template and the document path it re-reads on
// Reload, mirroring Config.py's Config object.
type Config struct {
	log      *logrus.Entry
	sink     ConfigSink
	template Template
	path     string
}

// New constructs a Config bound to sink (normally store.Config) and the
// on-disk machine configuration document at path.
func New(log *logrus.Entry, sink ConfigSink, tmpl Template, path string) *Config {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Config{log: log.WithField("component", "machineconfig"), sink: sink, template: tmpl, path: path}
}

// Load reads the configuration document from disk, or an empty
// document if none exists (the firmware will see every key's default).
func (c *Config) Load() (map[string]any, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Update walks doc through the template, encoding every key that is
// either present in doc or (when withDefaults) falls back to its
// spec's default, and forwards each through the sink.
func (c *Config) Update(doc map[string]any, withDefaults bool) {
	for section, category := range c.template {
		if section == "motors" {
			motors, _ := doc["motors"].([]any)
			for i := range motors {
				motorDoc, _ := motors[i].(map[string]any)
				c.encodeCategory(i, motorDoc, category, withDefaults)
			}
			continue
		}
		sectionDoc, _ := doc[section].(map[string]any)
		c.encodeCategory(-1, sectionDoc, category, withDefaults)
	}
}

// Reload re-reads the document from disk and re-encodes every key with
// defaults filled in, the response to a fresh handshake (spec §4.D).
func (c *Config) Reload() {
	doc, err := c.Load()
	if err != nil {
		c.log.WithError(err).Warn("failed to load machine configuration, using defaults")
		doc = map[string]any{}
	}
	c.Update(doc, true)
}

func (c *Config) encodeCategory(index int, doc map[string]any, category Category, withDefaults bool) {
	for key, spec := range category {
		value, present := doc[key]
		if !present {
			if !withDefaults {
				continue
			}
			value = spec.Default
		}
		c.encodeVar(index, value, spec)
	}
}

func (c *Config) encodeVar(index int, value any, spec VarSpec) {
	code := spec.Code
	if index >= 0 {
		code = strconv.Itoa(index) + code
	}

	switch spec.Type {
	case TypeBool:
		b, _ := value.(bool)
		c.sink(code, state.Bool(b))
	case TypePercent:
		f := mathx.Clamp(toFloat(value)/100.0, 0, 1)
		c.sink(code, state.Float(f))
	case TypeEnum:
		idx := enumIndex(spec.Values, value)
		c.sink(code, state.Int(int64(idx)))
	default: // TypeFloat
		c.sink(code, state.Float(toFloat(value)))
	}
}

func enumIndex(values []string, value any) int {
	name, _ := value.(string)
	for i, v := range values {
		if v == name {
			return i
		}
	}
	return 0
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}
