// Package fairprice implements the sliding-window median-offset fuser that
// turns two independent mid-price feeds (a reference venue and the local
// exchange) into a single fair price for quoting.
//
// The window is a fixed-capacity ring buffer of per-second offset samples,
// generalized from the rolling fill window in the teacher repo's toxic-flow
// tracker (internal/strategy/flow_tracker.go): both evict by a wall-clock
// cutoff rather than a fixed slot count, and both dedup/aggregate within a
// short period instead of storing every raw event.
package fairprice

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// defaultCapacity covers window_ms/1000 + margin for any window up to ~8
// minutes at one sample per second; 500 is the safe constant the spec
// suggests.
const defaultCapacity = 500

// sample is one recorded (local - reference) offset, keyed to the
// wall-clock second it was recorded in.
type sample struct {
	offset decimal.Decimal
	second int64
}

// State is the progress snapshot returned by State, ignoring MinSamples.
type State struct {
	Offset     decimal.Decimal
	HasOffset  bool
	ValidCount int
}

// Estimator fuses a reference mid and a rolling median local-minus-reference
// offset into a fair price. It is safe for concurrent use; a single
// event-loop task is expected to own it exclusively per the ownership model,
// but the mutex makes misuse merely slow, not racy.
type Estimator struct {
	mu         sync.Mutex
	windowMs   int64
	minSamples int
	capacity   int

	samples    []sample
	head       int // index of the oldest sample
	count      int
	lastSecond int64
}

// New creates an estimator with the given window (milliseconds) and minimum
// sample count required before FairPrice returns a usable result.
func New(windowMs int64, minSamples int) *Estimator {
	cap := int(windowMs/1000) + 16
	if cap < defaultCapacity {
		cap = defaultCapacity
	}
	return &Estimator{
		windowMs:   windowMs,
		minSamples: minSamples,
		capacity:   cap,
		samples:    make([]sample, cap),
		lastSecond: -1,
	}
}

// AddSample records one offset sample for the given wall-clock second,
// derived from local and reference mid prices. It is a no-op if a sample was
// already recorded for that second (dedup within the second, per spec).
func (e *Estimator) AddSample(local, reference decimal.Decimal, nowMs int64) {
	second := nowMs / 1000

	e.mu.Lock()
	defer e.mu.Unlock()

	if second <= e.lastSecond {
		return
	}
	e.lastSecond = second

	offset := local.Sub(reference)
	s := sample{offset: offset, second: second}

	if e.count < e.capacity {
		idx := (e.head + e.count) % e.capacity
		e.samples[idx] = s
		e.count++
	} else {
		e.samples[e.head] = s
		e.head = (e.head + 1) % e.capacity
	}
}

// windowedOffsetsLocked returns every recorded offset whose second falls
// within (now-window, now], newest-first order not required by caller.
func (e *Estimator) windowedOffsetsLocked(nowMs int64) []decimal.Decimal {
	cutoffSecond := (nowMs - e.windowMs) / 1000
	out := make([]decimal.Decimal, 0, e.count)
	for i := 0; i < e.count; i++ {
		idx := (e.head + i) % e.capacity
		s := e.samples[idx]
		if s.second > cutoffSecond {
			out = append(out, s.offset)
		}
	}
	return out
}

// FairPrice returns reference+median(offsets) and true, iff at least
// MinSamples valid samples exist in the current window; otherwise the
// result is "not ready" (false), never an error.
func (e *Estimator) FairPrice(referenceMid decimal.Decimal, nowMs int64) (decimal.Decimal, bool) {
	e.mu.Lock()
	offsets := e.windowedOffsetsLocked(nowMs)
	e.mu.Unlock()

	if len(offsets) == 0 || len(offsets) < e.minSamples {
		return decimal.Zero, false
	}
	return referenceMid.Add(median(offsets)), true
}

// State reports the current windowed offset (if any) and sample count,
// ignoring MinSamples — used for warm-up progress display.
func (e *Estimator) State(nowMs int64) State {
	e.mu.Lock()
	offsets := e.windowedOffsetsLocked(nowMs)
	e.mu.Unlock()

	if len(offsets) == 0 {
		return State{ValidCount: 0}
	}
	return State{Offset: median(offsets), HasOffset: true, ValidCount: len(offsets)}
}

// median computes the median of a decimal slice, averaging the two middle
// elements for an even count. The window is always small (bounded by
// capacity), so a sort is linear-enough in practice; any correct median
// algorithm satisfies the spec.
func median(xs []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(xs))
	copy(sorted, xs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}
