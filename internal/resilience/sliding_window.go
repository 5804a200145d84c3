package resilience

import (
	"sync"
	"time"
)

// bucket holds success/failure counts for one slice of the window.
type bucket struct {
	success uint64
	failure uint64
	startedAt time.Time
}

// SlidingWindow tracks success/failure counts over a rolling time window
// divided into fixed buckets, rotating out the oldest bucket as time moves
// forward. Used both for circuit breaker error-rate evaluation and for
// rate-limiting (counting events per actor per window).
type SlidingWindow struct {
	mu          sync.Mutex
	buckets     []bucket
	bucketSpan  time.Duration
	windowSize  time.Duration
	cursor      int
	lastRotate  time.Time
}

// NewSlidingWindow creates a window of windowSize split into bucketCount
// equal buckets.
func NewSlidingWindow(windowSize time.Duration, bucketCount int) *SlidingWindow {
	if bucketCount <= 0 {
		bucketCount = 10
	}
	if windowSize <= 0 {
		windowSize = 60 * time.Second
	}
	now := time.Now()
	buckets := make([]bucket, bucketCount)
	for i := range buckets {
		buckets[i].startedAt = now
	}
	return &SlidingWindow{
		buckets:    buckets,
		bucketSpan: windowSize / time.Duration(bucketCount),
		windowSize: windowSize,
		lastRotate: now,
	}
}

func (sw *SlidingWindow) rotate() {
	now := time.Now()
	elapsed := now.Sub(sw.lastRotate)
	if elapsed < sw.bucketSpan {
		return
	}
	advance := int(elapsed / sw.bucketSpan)
	if advance > len(sw.buckets) {
		advance = len(sw.buckets)
	}
	for i := 0; i < advance; i++ {
		sw.cursor = (sw.cursor + 1) % len(sw.buckets)
		sw.buckets[sw.cursor] = bucket{startedAt: now}
	}
	sw.lastRotate = now
}

// RecordSuccess records a success in the current bucket.
func (sw *SlidingWindow) RecordSuccess() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	sw.buckets[sw.cursor].success++
}

// RecordFailure records a failure in the current bucket.
func (sw *SlidingWindow) RecordFailure() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	sw.buckets[sw.cursor].failure++
}

// Counts returns the total success/failure counts across the live window.
func (sw *SlidingWindow) Counts() (success, failure uint64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.rotate()
	cutoff := time.Now().Add(-sw.windowSize)
	for _, b := range sw.buckets {
		if b.startedAt.Before(cutoff) {
			continue
		}
		success += b.success
		failure += b.failure
	}
	return success, failure
}

// ErrorRate returns failure/(success+failure), 0 when there is no traffic.
func (sw *SlidingWindow) ErrorRate() float64 {
	success, failure := sw.Counts()
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(failure) / float64(total)
}

// Total returns the number of events recorded in the live window.
func (sw *SlidingWindow) Total() uint64 {
	success, failure := sw.Counts()
	return success + failure
}

// Reset clears all buckets, used when a rate-limit window needs to be
// forced back to empty (e.g. after a manual override).
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := time.Now()
	for i := range sw.buckets {
		sw.buckets[i] = bucket{startedAt: now}
	}
	sw.lastRotate = now
}
