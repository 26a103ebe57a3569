package state

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// axisOrder is the fixed axis namespace, index-addressed by <m>an.
const axisOrder = "xyzabc"

// Listener receives a coalesced batch of changes, keyed by resolved name.
type Listener func(changes map[string]Value)

// ListenerHandle identifies a registered Listener for later removal.
type ListenerHandle uint64

type listenerEntry struct {
	id ListenerHandle
	fn Listener
}

// Store is the reactive machine state store (spec §3, §4.A). All
// exported methods are safe to call from the single-threaded control
// loop; the mutex exists solely to let the debounce timer (which fires
// on its own goroutine) and Snapshot (read by the preplanner worker
// pool) coordinate with it.
type Store struct {
	mu sync.Mutex

	log *logrus.Entry

	vars      map[string]Value
	callbacks map[string]func() Value

	machineVarSet map[string]struct{}

	changes       map[string]Value
	debounce      time.Duration
	debounceTimer *time.Timer

	listeners []listenerEntry
	nextID    ListenerHandle

	// ConfigSink, if set, receives Config() calls for names in the
	// machine variable set instead of a plain Set. The Motion
	// Coordinator installs this to route machine-config writes to a
	// firmware `set` command (§4.A config(code, value)).
	ConfigSink func(code string, value Value)

	// OnConfigReload is invoked after MachineCmdsAndVars rebuilds the
	// machine variable set, mirroring Config.py's reload() call.
	OnConfigReload func()
}

// New constructs a Store. debounce is the change-notification coalescing
// window (spec default 250ms); zero means deliver synchronously and
// inline, which is useful for tests.
func New(log *logrus.Entry, debounce time.Duration) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		log:           log.WithField("component", "state"),
		vars:          make(map[string]Value),
		callbacks:     make(map[string]func() Value),
		machineVarSet: make(map[string]struct{}),
		changes:       make(map[string]Value),
		debounce:      debounce,
	}
}

// resolveLocked maps an axis-prefixed name (e.g. "x_hd") to its motor-indexed
// equivalent ("0hd") by consulting the current <m>an/<m>pm mapping. It
// must be called with mu held. Names with no matching axis prefix, or
// for which no motor currently claims the axis, are returned unchanged.
func (s *Store) resolveLocked(name string) string {
	if len(name) < 3 || name[1] != '_' {
		return name
	}
	axis := name[0]
	if strings.IndexByte(axisOrder, axis) < 0 {
		return name
	}
	suffix := name[2:]
	m, ok := s.findMotorLocked(axis)
	if !ok {
		return name
	}
	return strconv.Itoa(m) + suffix
}

func (s *Store) findMotorLocked(axis byte) (int, bool) {
	axisIdx := int64(strings.IndexByte(axisOrder, axis))
	if axisIdx < 0 {
		return 0, false
	}
	for m := 0; m <= 5; m++ {
		an, hasAn := s.vars[strconv.Itoa(m)+"an"]
		pm, hasPm := s.vars[strconv.Itoa(m)+"pm"]
		if hasAn && hasPm && an.AsInt() == axisIdx && pm.AsBool() {
			return m, true
		}
	}
	return 0, false
}

// FindMotor returns the lowest motor index claiming the given axis
// letter, i.e. the lowest m with "xyzabc"[<m>an] == axis and <m>pm truthy.
func (s *Store) FindMotor(axis byte) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findMotorLocked(axis)
}

// Has reports whether name (after resolution) has an explicit value.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vars[s.resolveLocked(name)]
	return ok
}

// Get returns the resolved value for name, falling back to a registered
// callback, then to def.
func (s *Store) Get(name string, def Value) Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := s.resolveLocked(name)
	if v, ok := s.vars[resolved]; ok {
		return v
	}
	if cb, ok := s.callbacks[resolved]; ok {
		return cb()
	}
	return def
}

// Set resolves name, and if absent or different from its current value,
// stores it and records a pending change, arming the debounce timer.
func (s *Store) Set(name string, v Value) {
	s.mu.Lock()
	s.setLocked(name, v)
	s.armDebounceLocked()
	s.mu.Unlock()
}

func (s *Store) setLocked(name string, v Value) {
	resolved := s.resolveLocked(name)
	if old, ok := s.vars[resolved]; ok && old.Equal(v) {
		return
	}
	s.vars[resolved] = v
	s.changes[resolved] = v
}

// Update applies a batch of sets as one debounce-arming operation.
func (s *Store) Update(m map[string]Value) {
	s.mu.Lock()
	for name, v := range m {
		s.setLocked(name, v)
	}
	s.armDebounceLocked()
	s.mu.Unlock()
}

// SetCallback installs a nullary derivation function consulted by Get
// when name (after resolution) has no explicit value.
func (s *Store) SetCallback(name string, fn func() Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[s.resolveLocked(name)] = fn
}

// Config dispatches a firmware-code write: if code names a machine
// variable (populated by the last handshake), it is forwarded to
// ConfigSink; otherwise it is a plain Set.
func (s *Store) Config(code string, v Value) {
	s.mu.Lock()
	_, isMachineVar := s.machineVarSet[code]
	sink := s.ConfigSink
	s.mu.Unlock()

	if isMachineVar && sink != nil {
		sink(code, v)
		return
	}
	s.Set(code, v)
}

// VariableSpec describes one entry of a firmware handshake's `variables`
// map: a firmware code, optionally indexed across multiple instances
// (e.g. one per motor) by a string of index characters.
type VariableSpec struct {
	Index string
}

// MachineCmdsAndVars ingests a firmware handshake: rebuilds the machine
// variable set (indexed entries expand to the Cartesian product of
// their index characters and the key) and triggers a configuration
// reload.
func (s *Store) MachineCmdsAndVars(variables map[string]VariableSpec) {
	s.mu.Lock()
	s.machineVarSet = make(map[string]struct{}, len(variables))
	for name, spec := range variables {
		if spec.Index == "" {
			s.machineVarSet[name] = struct{}{}
			continue
		}
		for _, ch := range spec.Index {
			s.machineVarSet[string(ch)+name] = struct{}{}
		}
	}
	reload := s.OnConfigReload
	s.mu.Unlock()

	if reload != nil {
		reload()
	}
}

// Snapshot returns a deep copy of the current mapping, safe to hand to
// the preplanner worker pool.
func (s *Store) Snapshot() map[string]Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Value, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Reset marks motors 0..3 unhomed and zeroes axis positions and offsets
// for all six axes.
func (s *Store) Reset() {
	s.mu.Lock()
	for m := 0; m <= 3; m++ {
		s.setLocked(strconv.Itoa(m)+"homed", Bool(false))
	}
	for i := 0; i < len(axisOrder); i++ {
		axis := string(axisOrder[i])
		s.setLocked(axis+"p", Float(0))
		s.setLocked("offset_"+axis, Float(0))
	}
	s.armDebounceLocked()
	s.mu.Unlock()
}

// AddListener registers fn and immediately invokes it once with the
// full current mapping, per the registration invariant.
func (s *Store) AddListener(fn Listener) ListenerHandle {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	snapshot := make(map[string]Value, len(s.vars))
	for k, v := range s.vars {
		snapshot[k] = v
	}
	s.mu.Unlock()

	s.invokeListener(fn, snapshot)
	return id
}

// RemoveListener unregisters a previously added listener.
func (s *Store) RemoveListener(h ListenerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.listeners {
		if e.id == h {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Store) invokeListener(fn Listener, changes map[string]Value) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("state listener panicked")
		}
	}()
	fn(changes)
}

// armDebounceLocked starts the one-shot debounce timer if not already
// armed; re-arming is idempotent. Must be called with mu held.
func (s *Store) armDebounceLocked() {
	if len(s.changes) == 0 {
		return
	}
	if s.debounce <= 0 {
		s.flushLocked()
		return
	}
	if s.debounceTimer != nil {
		return
	}
	s.debounceTimer = time.AfterFunc(s.debounce, s.fireDebounce)
}

func (s *Store) fireDebounce() {
	s.mu.Lock()
	s.debounceTimer = nil
	s.flushLocked()
	s.mu.Unlock()
}

// flushLocked fires every registered listener with the accumulated
// change batch and clears it. Must be called with mu held; listener
// invocation itself happens with mu released to avoid reentrancy
// deadlocks if a listener calls back into the store.
func (s *Store) flushLocked() {
	if len(s.changes) == 0 {
		return
	}
	batch := s.changes
	s.changes = make(map[string]Value)
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)

	s.mu.Unlock()
	for _, e := range listeners {
		s.invokeListener(e.fn, batch)
	}
	s.mu.Lock()
}

