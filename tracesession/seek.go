// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracesession

import (
	"container/heap"

	"github.com/tracereader/ltt/trace"
)

// Predicate reports whether an event counts toward a SeekForward or
// SeekBackward call; a nil
// Predicate counts every event.
type Predicate func(event *trace.Event) bool

// SeekForward moves the merge iterator onto the n-th event matching pred,
// counting the event currently at the front as the first candidate and
// discarding the events in between (§4.9's n-events-forward seek). If the
// front event matches, SeekForward(1) leaves the iterator where it is.
func (s *Session) SeekForward(n int, pred Predicate) error {
	matched := 0
	for matched < n {
		if s.heap.Len() == 0 {
			return trace.ErrEndOfTrace
		}
		top := s.heap[0]
		event := top.cursor.Event()
		if pred == nil || pred(event) {
			matched++
		}
		if matched >= n {
			return nil
		}
		if err := s.advanceTop(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) advanceTop() error {
	top := s.heap[0]
	err := top.cursor.Read()
	switch err {
	case nil:
		heap.Fix(&s.heap, 0)
		return nil
	case trace.ErrEndOfTrace:
		heap.Pop(&s.heap)
		return nil
	default:
		return err
	}
}

// SeekBackward seeks n matching events before the current position, using a
// doubling time-delta hint: it guesses an earlier time, re-seeks forward
// from there counting matches, and doubles the guess if it undershot. This
// terminates in O(log(file) · n) sub-buffer maps (§4.9).
func (s *Session) SeekBackward(ts *trace.TraceSet, n int, pred Predicate, hint trace.LttTime) error {
	if s.heap.Len() == 0 {
		return trace.ErrEndOfTrace
	}
	current := s.heap[0].cursor.Event().Time
	delta := hint
	for {
		guess := trace.Sub(current, delta)
		if err := s.Begin(ts, &guess); err != nil {
			return err
		}
		matched := 0
		for s.heap.Len() > 0 {
			event := s.heap[0].cursor.Event()
			if !event.Time.Before(current) {
				break
			}
			if pred == nil || pred(event) {
				matched++
			}
			if err := s.advanceTop(); err != nil {
				return err
			}
		}
		if matched >= n || guess.Compare(trace.ZeroTime) == 0 {
			if err := s.Begin(ts, &guess); err != nil {
				return err
			}
			// matched counted every match between guess and current; the
			// n-th match before current is the (matched-n+1)-th match from
			// guess forward. If delta undershot (matched < n, only possible
			// once guess hit the start of trace), land as close as we can.
			want := matched - n + 1
			if want < 1 {
				return nil
			}
			return s.SeekForward(want, pred)
		}
		delta = trace.Add(delta, delta)
	}
}
