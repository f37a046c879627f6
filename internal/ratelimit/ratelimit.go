// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ratelimit enforces two independent token-bucket ceilings per
// remote address — per minute and per hour — both of which must allow
// a request through.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// buckets holds the pair of limiters tracked for one remote address.
type buckets struct {
	perMinute *rate.Limiter
	perHour   *rate.Limiter
	lastSeen  time.Time
}

// Limiter tracks per-key rate limit state behind a single mutex, the
// same shape as the provider-keyed limiter it's grounded on, swapped
// from a sliding timestamp window to two token buckets.
type Limiter struct {
	mu          sync.Mutex
	perMinuteN  int
	perHourN    int
	keys        map[string]*buckets
}

// New constructs a Limiter with the given per-minute and per-hour
// ceilings, applied independently to every distinct key.
func New(perMinute, perHour int) *Limiter {
	return &Limiter{
		perMinuteN: perMinute,
		perHourN:   perHour,
		keys:       make(map[string]*buckets),
	}
}

// Allow reports whether key (typically a remote address) may proceed,
// and if not, how long the caller should wait before retrying.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	b, ok := l.keys[key]
	if !ok {
		b = &buckets{
			perMinute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinuteN)), l.perMinuteN),
			perHour:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHourN)), l.perHourN),
		}
		l.keys[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	now := time.Now()
	minuteRes := b.perMinute.ReserveN(now, 1)
	if !minuteRes.OK() {
		return false, time.Second
	}
	minuteDelay := minuteRes.DelayFrom(now)

	hourRes := b.perHour.ReserveN(now, 1)
	if !hourRes.OK() {
		minuteRes.CancelAt(now)
		return false, time.Second
	}
	hourDelay := hourRes.DelayFrom(now)

	if minuteDelay > 0 || hourDelay > 0 {
		minuteRes.CancelAt(now)
		hourRes.CancelAt(now)
		wait := minuteDelay
		if hourDelay > wait {
			wait = hourDelay
		}
		return false, wait
	}
	return true, 0
}

// Sweep evicts keys idle for longer than maxIdle, so long-running
// gateways don't accumulate a limiter per ephemeral client forever.
func (l *Limiter) Sweep(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-maxIdle)
	for k, b := range l.keys {
		if b.lastSeen.Before(cutoff) {
			delete(l.keys, k)
		}
	}
}
