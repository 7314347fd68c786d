// Package netutil holds networking helpers shared by the cluster tooling.
package netutil

import (
	"context"
	"errors"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("netutil")

// ErrThresholdReached is returned when the retries ran out of time.
var ErrThresholdReached = errors.New("threshold timeout has been reached")

// RetryFunc is the operation retried by a Retrier.
type RetryFunc func() error

// Retrier retries an operation with exponential backoff until it succeeds,
// fails with a whitelisted error or the threshold elapses.
type Retrier struct {
	exponentialBackoff time.Duration
	exponentialFactor  uint32
	threshold          time.Duration
	errWhitelist       map[error]struct{}
}

// NewRetrier returns a retrier waiting exponentialBackoff after the first
// failure, multiplying the wait by factor after each one.
func NewRetrier(exponentialBackoff, threshold time.Duration, factor uint32) *Retrier {
	return &Retrier{
		exponentialBackoff: exponentialBackoff,
		threshold:          threshold,
		exponentialFactor:  factor,
		errWhitelist:       make(map[error]struct{}),
	}
}

// WithErrWhitelist sets errors that stop the retries and are returned as is.
func (r *Retrier) WithErrWhitelist(errors ...error) *Retrier {
	m := make(map[error]struct{})
	for _, err := range errors {
		m[err] = struct{}{}
	}

	r.errWhitelist = m
	return r
}

// Do runs f until it succeeds.
func (r Retrier) Do(ctx context.Context, f RetryFunc) error {
	deadline := time.Now().Add(r.threshold)
	currentBackoff := r.exponentialBackoff

	for {
		err := f()
		if err == nil {
			return nil
		}
		if r.isWhitelisted(err) {
			return err
		}
		if time.Now().Add(currentBackoff).After(deadline) {
			return ErrThresholdReached
		}
		log.WithError(err).Debugf("retrying in %s", currentBackoff)

		t := time.NewTimer(currentBackoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		currentBackoff *= time.Duration(r.exponentialFactor)
	}
}

func (r Retrier) isWhitelisted(err error) bool {
	_, ok := r.errWhitelist[err]
	return ok
}
