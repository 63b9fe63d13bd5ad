// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import "encoding/binary"

const (
	magicLittleEndian uint32 = 0x00D6B7ED
	magicBigEndian    uint32 = 0xEDB7D600
)

// commonHeaderSize is the 48-byte prefix every sub-buffer carries, after
// which its payload begins. traceHeaderV23Size is the size of the trace-wide
// header that follows that prefix only in sub-buffer 0 of the metadata
// channel, whose event data therefore begins at
// commonHeaderSize+traceHeaderV23Size.
const (
	commonHeaderSize   = 48 // cycle_count_begin/end, freq_begin/end, lost_size, buf_size, events_lost, subbuf_corrupt
	traceHeaderV23Size = 4*4 + 1*8 + 4 + 8*5
)

// commonSubBufferHeader is the per-sub-buffer prefix present at offset 0 of
// every sub-buffer in every channel (§6's sub-buffer layout table).
type commonSubBufferHeader struct {
	CycleCountBegin uint64
	FreqBegin       uint64
	CycleCountEnd   uint64
	FreqEnd         uint64
	LostSize        uint32
	BufSize         uint32
	EventsLost      uint32
	SubBufCorrupt   uint32
}

// traceHeaderV23 is the trace-wide header found only on sub-buffer 0 of the
// metadata channel, version 2.3 (the only version this reader supports).
type traceHeaderV23 struct {
	Magic           uint32
	ArchType        uint32
	ArchVariant     uint32
	FloatWordOrder  uint32
	ArchSize        uint8
	MajorVersion    uint8
	MinorVersion    uint8
	FlightRecorder  uint8
	Alignment       uint8
	TSCBits         uint8
	EventBits       uint8
	Unused1         uint8
	FreqScale       uint32
	StartFreq       uint64
	CycleCountBegin uint64
	StartMonotonic  uint64
	StartTimeSec    uint64
	StartTimeUsec   uint64
}

// decodeCommonHeader reads the common per-sub-buffer prefix. order is the
// byte order already established for this tracefile (from the tracefile's
// own sub-buffer 0 decode, or inherited from it for subsequent sub-buffers).
func decodeCommonHeader(buf []byte, order binary.ByteOrder) (commonSubBufferHeader, error) {
	if len(buf) < commonHeaderSize {
		return commonSubBufferHeader{}, ErrTooSmall
	}
	bd := &bufDecoder{buf: buf, order: order}
	var h commonSubBufferHeader
	h.CycleCountBegin = bd.u64()
	h.FreqBegin = bd.u64()
	h.CycleCountEnd = bd.u64()
	h.FreqEnd = bd.u64()
	h.LostSize = bd.u32()
	h.BufSize = bd.u32()
	h.EventsLost = bd.u32()
	h.SubBufCorrupt = bd.u32()
	return h, nil
}

// decodeTraceHeader reads the trace-wide header from sub-buffer 0 of the
// metadata channel, following the common prefix. It determines the byte
// order from the magic number itself, so it does not take one as input.
//
// Only major.minor 2.3 is supported; anything else is ErrUnsupportedVersion,
// per §4.2's invariant that only version (2,3) is specified here.
func decodeTraceHeader(buf []byte) (traceHeaderV23, bool, error) {
	if len(buf) < 4 {
		return traceHeaderV23{}, false, ErrTooSmall
	}
	// The magic is always read as if little-endian: a big-endian producer's
	// bytes then naturally decode to the byte-swapped constant.
	var reverse bool
	switch leUint32(buf) {
	case magicLittleEndian:
		reverse = false
	case magicBigEndian:
		reverse = true
	default:
		return traceHeaderV23{}, false, ErrInvalidMagic
	}

	order := byteOrderFor(reverse)
	if len(buf) < traceHeaderV23Size {
		return traceHeaderV23{}, reverse, ErrTooSmall
	}
	bd := &bufDecoder{buf: buf, order: order}
	var h traceHeaderV23
	h.Magic = bd.u32()
	h.ArchType = bd.u32()
	h.ArchVariant = bd.u32()
	h.FloatWordOrder = bd.u32()
	h.ArchSize = bd.u8()
	h.MajorVersion = bd.u8()
	h.MinorVersion = bd.u8()
	h.FlightRecorder = bd.u8()
	h.Alignment = bd.u8()
	h.TSCBits = bd.u8()
	h.EventBits = bd.u8()
	h.Unused1 = bd.u8()
	h.FreqScale = bd.u32()
	h.StartFreq = bd.u64()
	h.CycleCountBegin = bd.u64()
	h.StartMonotonic = bd.u64()
	h.StartTimeSec = bd.u64()
	h.StartTimeUsec = bd.u64()

	if h.MajorVersion != 2 || h.MinorVersion != 3 {
		return h, reverse, &TraceError{
			Category: CategoryUnsupportedVersion,
			Err:      ErrUnsupportedVersion,
		}
	}
	return h, reverse, nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
