package gpio

import "sync"

// FakePin is a test double that records every level it is driven to.
// Safe for concurrent use.
type FakePin struct {
	mu   sync.Mutex
	high bool

	// Writes counts successful SetHigh/SetLow/Toggle calls.
	writes int
	// history holds the level after each write, oldest first.
	history []bool

	// WriteError, if set, is returned by every write and the level is unchanged.
	writeError error
}

// NewFakePin creates a FakePin driven low.
func NewFakePin() *FakePin {
	return &FakePin{}
}

func (f *FakePin) set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setLocked(high)
}

func (f *FakePin) setLocked(high bool) error {
	if f.writeError != nil {
		return f.writeError
	}
	f.high = high
	f.writes++
	f.history = append(f.history, high)
	return nil
}

// SetHigh drives the fake line high.
func (f *FakePin) SetHigh() error { return f.set(true) }

// SetLow drives the fake line low.
func (f *FakePin) SetLow() error { return f.set(false) }

// Toggle inverts the fake line.
func (f *FakePin) Toggle() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setLocked(!f.high)
}

// IsSetHigh reports the current level.
func (f *FakePin) IsSetHigh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.high
}

// Writes returns the number of successful writes.
func (f *FakePin) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// History returns a copy of the driven levels, oldest first.
func (f *FakePin) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// SetWriteError makes subsequent writes fail with err (nil clears it).
func (f *FakePin) SetWriteError(err error) {
	f.mu.Lock()
	f.writeError = err
	f.mu.Unlock()
}

// Reset clears recorded writes and drives the fake line low.
func (f *FakePin) Reset() {
	f.mu.Lock()
	f.high = false
	f.writes = 0
	f.history = nil
	f.writeError = nil
	f.mu.Unlock()
}
