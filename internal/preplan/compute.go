package preplan

import "math"

// unitVector returns the unit direction from `from` to `to` across the
// union of axes either touches, alongside the segment's full length.
func unitVector(from, to map[byte]float64) (unit map[byte]float64, length float64) {
	seen := make(map[byte]bool)
	diff := make(map[byte]float64)
	for axis := range from {
		seen[axis] = true
	}
	for axis := range to {
		seen[axis] = true
	}
	var sumSq float64
	for axis := range seen {
		d := to[axis] - from[axis]
		diff[axis] = d
		sumSq += d * d
	}
	length = math.Sqrt(sumSq)
	unit = make(map[byte]float64, len(diff))
	if length > 0 {
		for axis, d := range diff {
			unit[axis] = d / length
		}
	}
	return unit, length
}

// pointAlong returns the position distance units along unit from from,
// holding any axis absent from unit fixed at its `from` value.
func pointAlong(from, unit map[byte]float64, distance float64) map[byte]float64 {
	pt := make(map[byte]float64, len(from))
	for axis, v := range from {
		pt[axis] = v
	}
	for axis, u := range unit {
		pt[axis] = from[axis] + u*distance
	}
	return pt
}

func clonePosition(pos map[byte]float64) map[byte]float64 {
	out := make(map[byte]float64, len(pos))
	for k, v := range pos {
		out[k] = v
	}
	return out
}

func positionToJSON(pos map[byte]float64) map[string]PlanFloat {
	out := make(map[string]PlanFloat, len(pos))
	for axis, v := range pos {
		out[string(axis)] = PlanFloat(v)
	}
	return out
}
