// Package critical provides the lock that shares a peripheral handle between
// the foreground loop and the interrupt handler that services the same
// peripheral.
package critical

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sweeney/fall-sensor/internal/irq"
)

var (
	ErrNotInitialized     = errors.New("critical: lock used before Init")
	ErrAlreadyInitialized = errors.New("critical: lock initialized twice")
)

// Masker defers one interrupt line. *irq.Controller implements it.
type Masker interface {
	Mask(irq.Line)
	Unmask(irq.Line)
}

// Lock owns a value of type T that is reachable from foreground code and from
// the handler of one interrupt line. The value is installed exactly once with
// Init and lives as long as the Lock.
//
// Misuse (Init twice, access before Init) panics.
type Lock[T any] struct {
	masker Masker
	line   irq.Line

	claimed atomic.Bool
	ready   atomic.Bool

	mu sync.Mutex
	v  T
}

// New returns an uninitialized lock guarding the given line.
func New[T any](m Masker, line irq.Line) *Lock[T] {
	return &Lock[T]{masker: m, line: line}
}

// Line returns the interrupt line this lock masks.
func (l *Lock[T]) Line() irq.Line {
	return l.line
}

// Init installs the handle.
func (l *Lock[T]) Init(v T) {
	if !l.claimed.CompareAndSwap(false, true) {
		panic(ErrAlreadyInitialized)
	}
	l.mu.Lock()
	l.v = v
	l.mu.Unlock()
	l.ready.Store(true)
}

// Initialized reports whether Init has completed.
func (l *Lock[T]) Initialized() bool {
	return l.ready.Load()
}

// WithLock runs fn with exclusive access to the handle from foreground code.
// The owning line is masked for the duration of fn, so its handler can
// neither be running nor start until fn returns. Must not be called from an
// interrupt handler; use FromISR there.
func (l *Lock[T]) WithLock(fn func(*T)) {
	if !l.ready.Load() {
		panic(ErrNotInitialized)
	}
	l.masker.Mask(l.line)
	defer l.masker.Unmask(l.line)

	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.v)
}

// FromISR runs fn with exclusive access to the handle from the owning line's
// handler. The dispatcher never runs the handler while the line is masked, so
// the mutex is uncontended; it only orders memory with the foreground.
func (l *Lock[T]) FromISR(fn func(*T)) {
	if !l.ready.Load() {
		panic(ErrNotInitialized)
	}
	l.mu.Lock()
	fn(&l.v)
	l.mu.Unlock()
}
