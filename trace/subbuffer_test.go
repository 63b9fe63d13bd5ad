// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestDecodeCommonHeaderLittleEndian(t *testing.T) {
	buf := make([]byte, 0, commonHeaderSize)
	buf = binary.LittleEndian.AppendUint64(buf, 1000) // CycleCountBegin
	buf = binary.LittleEndian.AppendUint64(buf, 0)    // FreqBegin
	buf = binary.LittleEndian.AppendUint64(buf, 2000) // CycleCountEnd
	buf = binary.LittleEndian.AppendUint64(buf, 0)    // FreqEnd
	buf = binary.LittleEndian.AppendUint32(buf, 0)    // LostSize
	buf = binary.LittleEndian.AppendUint32(buf, 4096) // BufSize
	buf = binary.LittleEndian.AppendUint32(buf, 5)    // EventsLost
	buf = binary.LittleEndian.AppendUint32(buf, 0)    // SubBufCorrupt

	h, err := decodeCommonHeader(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("decodeCommonHeader: %v", err)
	}
	if h.CycleCountBegin != 1000 || h.BufSize != 4096 || h.EventsLost != 5 {
		t.Errorf("h = %+v", h)
	}
}

func TestDecodeCommonHeaderTooSmall(t *testing.T) {
	if _, err := decodeCommonHeader(make([]byte, commonHeaderSize-1), binary.LittleEndian); !errors.Is(err, ErrTooSmall) {
		t.Errorf("err = %v, want ErrTooSmall", err)
	}
}

func buildTraceHeaderV23(order binary.ByteOrder, magic uint32) []byte {
	buf := make([]byte, 0, traceHeaderV23Size)
	buf = order.AppendUint32(buf, magic)
	buf = order.AppendUint32(buf, 0) // ArchType
	buf = order.AppendUint32(buf, 0) // ArchVariant
	buf = order.AppendUint32(buf, 0) // FloatWordOrder
	buf = append(buf, 8)             // ArchSize
	buf = append(buf, 2)             // MajorVersion
	buf = append(buf, 3)             // MinorVersion
	buf = append(buf, 0)             // FlightRecorder
	buf = append(buf, 4)             // Alignment
	buf = append(buf, 27)            // TSCBits
	buf = append(buf, 5)             // EventBits
	buf = append(buf, 0)             // Unused1
	buf = order.AppendUint32(buf, 1) // FreqScale
	buf = order.AppendUint64(buf, 1000000000) // StartFreq
	buf = order.AppendUint64(buf, 0)          // CycleCountBegin
	buf = order.AppendUint64(buf, 0)          // StartMonotonic
	buf = order.AppendUint64(buf, 1700000000) // StartTimeSec
	buf = order.AppendUint64(buf, 0)          // StartTimeUsec
	return buf
}

func TestDecodeTraceHeaderLittleEndian(t *testing.T) {
	buf := buildTraceHeaderV23(binary.LittleEndian, magicLittleEndian)
	h, reverse, err := decodeTraceHeader(buf)
	if err != nil {
		t.Fatalf("decodeTraceHeader: %v", err)
	}
	if reverse {
		t.Errorf("reverse = true for a little-endian magic")
	}
	if h.MajorVersion != 2 || h.MinorVersion != 3 {
		t.Errorf("version = %d.%d, want 2.3", h.MajorVersion, h.MinorVersion)
	}
	if h.TSCBits != 27 || h.EventBits != 5 {
		t.Errorf("TSCBits/EventBits = %d/%d, want 27/5", h.TSCBits, h.EventBits)
	}
}

func TestDecodeTraceHeaderBigEndian(t *testing.T) {
	// A big-endian producer writes the same magic constant in its own byte
	// order; read as little-endian it becomes magicBigEndian.
	buf := buildTraceHeaderV23(binary.BigEndian, magicLittleEndian)
	h, reverse, err := decodeTraceHeader(buf)
	if err != nil {
		t.Fatalf("decodeTraceHeader: %v", err)
	}
	if !reverse {
		t.Errorf("reverse = false for a big-endian magic")
	}
	if h.StartTimeSec != 1700000000 {
		t.Errorf("StartTimeSec = %d, want 1700000000", h.StartTimeSec)
	}
}

func TestDecodeTraceHeaderBadMagic(t *testing.T) {
	buf := buildTraceHeaderV23(binary.LittleEndian, 0xdeadbeef)
	if _, _, err := decodeTraceHeader(buf); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("err = %v, want ErrInvalidMagic", err)
	}
}

func TestDecodeTraceHeaderUnsupportedVersion(t *testing.T) {
	buf := buildTraceHeaderV23(binary.LittleEndian, magicLittleEndian)
	buf[17] = 9 // MajorVersion
	_, _, err := decodeTraceHeader(buf)
	var terr *TraceError
	if !errors.As(err, &terr) || terr.Category != CategoryUnsupportedVersion {
		t.Errorf("err = %v, want a TraceError with CategoryUnsupportedVersion", err)
	}
}
