package firmwarelink

import (
	"bytes"
	"encoding/json"
)

// ReadAvailable appends freshly read bytes to the buffer, splits on
// newline, and dispatches each complete line (spec §4.C "read path").
// Blank lines are ignored; malformed JSON lines are logged and skipped.
func (l *Link) ReadAvailable(data []byte) {
	l.readBuf = append(l.readBuf, data...)

	telemetry := make(map[string]any)
	sawTelemetry := false

	for {
		idx := bytes.IndexByte(l.readBuf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(l.readBuf[:idx])
		l.readBuf = l.readBuf[idx+1:]
		if len(line) == 0 {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			l.log.WithError(err).WithField("line", string(line)).Warn("malformed telemetry line, skipping")
			continue
		}

		if _, isHandshake := obj["variables"]; isHandshake {
			l.handleHandshake(obj)
			continue
		}

		sawTelemetry = true
		for k, v := range obj {
			telemetry[k] = v
		}
	}

	if !sawTelemetry {
		return
	}

	if _, rebooted := telemetry["firmware"]; rebooted && l.OnReboot != nil {
		l.OnReboot()
	}
	if l.OnTelemetry != nil {
		l.OnTelemetry(telemetry)
	}
}

func (l *Link) handleHandshake(obj map[string]any) {
	if l.OnHandshake == nil {
		return
	}
	if err := l.OnHandshake(obj); err != nil {
		l.log.WithError(err).Error("handshake application failed")
		if l.OnHandshakeFailed != nil {
			l.OnHandshakeFailed()
		}
		return
	}
	l.Enqueue("D")
}
