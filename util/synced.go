package util

import "sync/atomic"

// SafeCounter counts events across goroutines, e.g. guide detections or
// served renders.
type SafeCounter struct {
	value atomic.Int64
}

// NewSafeInt creates a new SafeCounter.
func NewSafeInt() *SafeCounter {
	return &SafeCounter{}
}

// Increment increments the counter's value and returns the new value.
func (si *SafeCounter) Increment() int {
	return int(si.value.Add(1))
}

// Add adds a delta to the counter's value and returns the new value.
func (si *SafeCounter) Add(delta int) int {
	return int(si.value.Add(int64(delta)))
}

// Value returns the current value of the counter.
func (si *SafeCounter) Value() int {
	return int(si.value.Load())
}

// Reset sets the counter back to zero and returns the previous value.
func (si *SafeCounter) Reset() int {
	return int(si.value.Swap(0))
}

// SafeFlag is a boolean shared between goroutines.
type SafeFlag struct {
	value atomic.Bool
}

// NewSafeBool creates a new SafeFlag.
func NewSafeBool() *SafeFlag {
	return &SafeFlag{}
}

// Set sets the value of the flag and returns the new value.
func (sb *SafeFlag) Set(newValue bool) bool {
	sb.value.Store(newValue)
	return newValue
}

// Value returns the current value of the flag.
func (sb *SafeFlag) Value() bool {
	return sb.value.Load()
}
