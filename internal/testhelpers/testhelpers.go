// Package testhelpers provides helpers for testing.
package testhelpers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Timeout bounds every wait performed by the helpers.
const Timeout = 10 * time.Second

// ErrTimeout is returned by WithinTimeout when nothing arrived in time.
var ErrTimeout = errors.New("timed out")

// WithinTimeout tries to read an error from error channel within Timeout
// and returns it. ErrTimeout is returned when nothing arrives.
func WithinTimeout(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(Timeout):
		return ErrTimeout
	}
}

// NoErrorN performs require.NoError on multiple errors
func NoErrorN(t *testing.T, errs ...error) {
	for _, err := range errs {
		require.NoError(t, err)
	}
}

// WaitFor polls cond until it holds, failing t after Timeout.
func WaitFor(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	deadline := time.Now().Add(Timeout)
	for !cond() {
		if time.Now().After(deadline) {
			require.FailNow(t, "condition not met in time", msgAndArgs...)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Pattern returns n bytes whose values depend on their offset, so that
// misplaced chunks are detected on comparison.
func Pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7+i/251) ^ seed
	}
	return b
}
