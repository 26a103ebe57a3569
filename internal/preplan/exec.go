package preplan

import (
	"bytes"
	"context"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/buildbotics/bbctrl-motion/internal/errs"
	"github.com/buildbotics/bbctrl-motion/internal/planner"
	"github.com/buildbotics/bbctrl-motion/internal/state"
)

// resolver builds a planner.Resolver over a telemetry snapshot taken
// once at plan start (spec §4.F: the Preplanner "must not call into the
// live State Store" while a plan runs). Imperial units divide lengths
// by 25.4, mirroring the original preplanner's variable callback.
func resolver(snapshot map[string]state.Value) planner.Resolver {
	return func(name string) float64 {
		name = strings.ToLower(strings.TrimPrefix(name, "_"))
		v := snapshot[name].AsFloat()
		if snapshot["units"].AsInt() == 1 { // 1 == IMPERIAL, see machineconfig.DefaultTemplate
			v /= 25.4
		}
		return v
	}
}

func countLines(data []byte) int64 {
	n := int64(bytes.Count(data, []byte("\n")))
	if n == 0 {
		n = 1
	}
	return n
}

// run drives eng through a freshly loaded program, simulating motion to
// build a Preview and Meta without writing to any cache. progress is
// called with a 0..1 fraction as the planner's line counter advances.
func (p *Preplanner) run(ctx context.Context, eng planner.Engine, snapshot map[string]state.Value, cfg planner.Config, path string, totalLines int64, progress func(float64)) (Preview, Meta, error) {
	var messages []string
	eng.Configure(cfg, resolver(snapshot), func(line string) {
		if line != "" {
			messages = append(messages, line)
		}
	})
	if err := eng.Load(path); err != nil {
		return Preview{}, Meta{}, &errs.E{C: errs.Protocol, Op: "preplan.run", Err: err}
	}

	position := make(map[byte]float64, len(cfg.Axes))
	for axis, limits := range cfg.Axes {
		position[axis] = limits.Start
	}
	type minmax struct{ min, max float64 }
	bounds := make(map[byte]*minmax)
	touch := func(axis byte, v float64) {
		b, ok := bounds[axis]
		if !ok {
			b = &minmax{min: math.Inf(1), max: math.Inf(-1)}
			bounds[axis] = b
		}
		if v < b.min {
			b.min = v
		}
		if v > b.max {
			b.max = v
		}
	}

	var totalTime, maxSpeed float64
	var maxLine int64
	var path_ []Point

	start := time.Now()
	lastProgress := start
	iterations := 0

	for eng.HasMore() {
		select {
		case <-ctx.Done():
			return Preview{}, Meta{}, ctx.Err()
		default:
		}

		if eng.IsSynchronizing() {
			eng.Synchronize(0)
		}

		block, ok := eng.Next()
		if !ok {
			break
		}

		switch block.Type {
		case "line":
			target := make(map[byte]float64, len(position))
			for axis, v := range position {
				target[axis] = v
			}
			for axis, v := range block.Target {
				target[axis] = v
			}
			if len(block.Speeds) > 0 {
				unit, length := unitVector(position, target)
				for _, sp := range block.Speeds {
					d := sp.Distance
					if d > length {
						d = length
					}
					pt := pointAlong(position, unit, d)
					path_ = append(path_, Point{Position: positionToJSON(pt), Speed: PlanFloat(sp.Speed)})
					if sp.Speed > maxSpeed {
						maxSpeed = sp.Speed
					}
				}
			}
			for axis, v := range target {
				touch(axis, v)
			}
			position = target
			if !block.First && !block.Seeking {
				var sum float64
				for _, t := range block.Times {
					sum += t
				}
				totalTime += sum / 1000
			}
		case "set":
			switch block.Name {
			case "line":
				n := int64(block.Value)
				if n > maxLine {
					maxLine = n
					lastProgress = time.Now()
				}
			case "speed":
				if block.Value > maxSpeed {
					maxSpeed = block.Value
				}
				path_ = append(path_, Point{Position: positionToJSON(position), Speed: PlanFloat(block.Value)})
			}
		case "dwell":
			totalTime += block.Seconds
		}

		iterations++
		if iterations%64 == 0 {
			runtime.Gosched()
		}

		if time.Since(start) > p.maxPreplanTime {
			messages = append(messages, "preplan exceeded its maximum run time")
			break
		}
		if time.Since(lastProgress) > p.maxLoopTime {
			messages = append(messages, "preplan stalled: no line progress")
			break
		}
		if totalLines > 0 {
			progress(float64(maxLine) / float64(totalLines))
		}
	}

	finalBounds := make(map[string]AxisBounds, len(bounds))
	for axis, b := range bounds {
		if math.IsInf(b.min, 0) || math.IsInf(b.max, 0) {
			continue
		}
		finalBounds[string(axis)] = AxisBounds{Min: PlanFloat(b.min), Max: PlanFloat(b.max)}
	}

	progress(1)
	return Preview{
			Time:     PlanFloat(totalTime),
			Lines:    maxLine,
			Path:     path_,
			MaxSpeed: PlanFloat(maxSpeed),
			Messages: messages,
		}, Meta{
			Bounds: finalBounds,
		}, nil
}
