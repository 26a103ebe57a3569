package preplan

import (
	"math"
	"sync/atomic"
)

// atomicFloat is a lock-free float64, used to publish plan progress from
// a worker goroutine to readers without blocking the worker.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) set(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) get() float64  { return math.Float64frombits(f.bits.Load()) }
