// Package ioutil holds small concurrency helpers shared by the I/O packages.
package ioutil

import "sync/atomic"

// Flag is a boolean that can be flipped from any goroutine.
type Flag struct {
	v int32
}

// Set raises the flag and reports whether it was previously lowered.
func (f *Flag) Set() bool {
	return atomic.CompareAndSwapInt32(&f.v, 0, 1)
}

// Clear lowers the flag and reports whether it was previously raised.
func (f *Flag) Clear() bool {
	return atomic.CompareAndSwapInt32(&f.v, 1, 0)
}

// IsSet reports whether the flag is raised.
func (f *Flag) IsSet() bool {
	return atomic.LoadInt32(&f.v) == 1
}
