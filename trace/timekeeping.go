// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

// timingAnchors holds the trace-wide frequency/TSC/wall-clock anchors read
// from sub-buffer 0 of the metadata channel. They are immutable once the
// trace is open and shared by every cursor belonging to the trace.
type timingAnchors struct {
	startFreq         uint64  // Hz
	freqScale         uint32
	startTSC          uint64
	startTime         LttTime // wall-clock time at startTSC
	startTimeFromTSC  LttTime // set equal to startTime when the trace is opened; tscToTime does not read it
}

// tscToTime converts a raw (already-extended) TSC value to wall-clock time,
// following ltt_interpolate_time_from_tsc: tsc may be before startTSC (the
// very first events of a trace can precede the anchor by a few cycles), in
// which case the delta is subtracted rather than added.
func (a *timingAnchors) tscToTime(tsc uint64) LttTime {
	var deltaTSC float64
	if tsc > a.startTSC {
		deltaTSC = float64(tsc - a.startTSC)
	} else {
		deltaTSC = float64(a.startTSC - tsc)
	}
	deltaNS := deltaTSC * nsPerSec * float64(a.freqScale) / float64(a.startFreq)
	delta := fromNanoseconds(deltaNS)
	if tsc > a.startTSC {
		return Add(a.startTime, delta)
	}
	return Sub(a.startTime, delta)
}

// extendTSC reconstructs the 64-bit monotonic TSC from a tscbits-wide
// truncated sample, given the cursor's previously observed 64-bit TSC. When
// the new low bits are smaller than the previous cursor TSC's low bits, the
// counter is assumed to have wrapped exactly once, and the high bits are
// incremented by 1<<tscbits (tsc_mask_next_bit in the original reader).
func extendTSC(prevTSC uint64, lowBits uint64, tscMask, tscMaskNextBit uint64) uint64 {
	if lowBits < (prevTSC & tscMask) {
		return ((prevTSC &^ tscMask) + tscMaskNextBit) | lowBits
	}
	return (prevTSC &^ tscMask) | lowBits
}
