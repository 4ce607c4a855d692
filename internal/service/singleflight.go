package service

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// FlightRegistry collapses concurrent generations for the same cache key
// into a single in-flight call whose outcome (value or error) is shared
// by every joiner. The underlying flight always runs to completion and
// caches its result even if every joiner's context is cancelled, so a
// caller giving up never abandons work other callers may still want.
//
// Tickets are ephemeral: singleflight tears the call down as soon as the
// owning function returns, success or failure, so no poison state is
// retained across flights.
type FlightRegistry struct {
	group singleflight.Group
}

// NewFlightRegistry creates an empty registry.
func NewFlightRegistry() *FlightRegistry {
	return &FlightRegistry{}
}

// Do runs fn under the key's flight, or joins an existing flight for the
// same key without invoking fn. It returns fn's outcome, plus whether the
// outcome was shared with other callers.
//
// If ctx is cancelled while waiting, Do returns ctx.Err() immediately but
// the flight keeps running for the remaining joiners.
func (r *FlightRegistry) Do(ctx context.Context, key string, fn func() (*flightOutcome, error)) (*flightOutcome, bool, error) {
	ch := r.group.DoChan(key, func() (any, error) {
		return fn()
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*flightOutcome), res.Shared, nil
	}
}

// Forget drops any in-flight ticket for the key so the next Do starts a
// fresh flight instead of joining the current one. Used by forced
// regeneration.
func (r *FlightRegistry) Forget(key string) {
	r.group.Forget(key)
}
