// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildSubBuffer constructs one sub-buffer's bytes: the 48-byte common
// header followed by payload, padded to bufSize. lostSize is set to the
// trailing dead space so seekNextEvent's live-region limit stops exactly
// after payload instead of reading the zero padding as further records.
func buildSubBuffer(order binary.ByteOrder, cycleBegin, cycleEnd uint64, bufSize uint32, payload []byte) []byte {
	lostSize := bufSize - uint32(commonHeaderSize+len(payload))
	buf := make([]byte, 0, bufSize)
	buf = order.AppendUint64(buf, cycleBegin) // CycleCountBegin
	buf = order.AppendUint64(buf, 0)          // FreqBegin
	buf = order.AppendUint64(buf, cycleEnd)   // CycleCountEnd
	buf = order.AppendUint64(buf, 0)          // FreqEnd
	buf = order.AppendUint32(buf, lostSize)   // LostSize
	buf = order.AppendUint32(buf, bufSize)    // BufSize
	buf = order.AppendUint32(buf, 0)          // EventsLost
	buf = order.AppendUint32(buf, 0)          // SubBufCorrupt
	buf = append(buf, payload...)
	for len(buf) < int(bufSize) {
		buf = append(buf, 0)
	}
	return buf
}

func eventHeaderWord(realID uint32, tscLow uint64, tscBits uint8) uint32 {
	return realID<<tscBits | uint32(tscLow)
}

func cstringBytes(s string) []byte { return append([]byte(s), 0) }

// buildMetadataSubBuffer builds sub-buffer 0 of the metadata channel: the
// trace-wide header followed by the two core marker-declaration records
// that register one user marker, "ev", on channel "chan0", formatted "%u".
func buildMetadataSubBuffer(order binary.ByteOrder, magic uint32, bufSize uint32) []byte {
	hdr := make([]byte, 0, traceHeaderV23Size)
	hdr = order.AppendUint32(hdr, magic)
	hdr = order.AppendUint32(hdr, 0) // ArchType
	hdr = order.AppendUint32(hdr, 0) // ArchVariant
	hdr = order.AppendUint32(hdr, 0) // FloatWordOrder
	hdr = append(hdr, 8)             // ArchSize
	hdr = append(hdr, 2)             // MajorVersion
	hdr = append(hdr, 3)             // MinorVersion
	hdr = append(hdr, 0)             // FlightRecorder
	hdr = append(hdr, 0)             // Alignment (disabled, to keep this fixture simple)
	hdr = append(hdr, 27)            // TSCBits
	hdr = append(hdr, 5)             // EventBits
	hdr = append(hdr, 0)             // Unused1
	hdr = order.AppendUint32(hdr, 1) // FreqScale
	hdr = order.AppendUint64(hdr, 1000000000) // StartFreq: 1GHz, 1 cycle = 1ns
	hdr = order.AppendUint64(hdr, 0)          // CycleCountBegin
	hdr = order.AppendUint64(hdr, 0)          // StartMonotonic
	hdr = order.AppendUint64(hdr, 1700000000) // StartTimeSec
	hdr = order.AppendUint64(hdr, 0)          // StartTimeUsec

	var payload []byte

	// MARKER_ID_SET_MARKER_ID (realID=0): declares "ev" on "chan0" as
	// marker id 16, with int=4, long=8, pointer=8, size_t=8, alignment=0.
	var rec1 []byte
	rec1 = append(rec1, cstringBytes("chan0")...)
	rec1 = append(rec1, cstringBytes("ev")...)
	rec1 = order.AppendUint16(rec1, 16) // id
	rec1 = append(rec1, 4, 8, 8, 8, 0)  // intSize, longSize, pointerSize, sizeTSize, alignment
	word1 := make([]byte, 4)
	order.PutUint32(word1, eventHeaderWord(0, 0, 27))
	payload = append(payload, word1...)
	payload = append(payload, rec1...)

	// MARKER_ID_SET_MARKER_FORMAT (realID=1): supplies the format string.
	var rec2 []byte
	rec2 = append(rec2, cstringBytes("chan0")...)
	rec2 = append(rec2, cstringBytes("ev")...)
	rec2 = append(rec2, cstringBytes("%u")...)
	word2 := make([]byte, 4)
	order.PutUint32(word2, eventHeaderWord(1, 0, 27))
	payload = append(payload, word2...)
	payload = append(payload, rec2...)

	full := append(hdr, payload...)
	return buildSubBuffer(order, 0, 0, bufSize, full)
}

// buildEventSubBuffer builds one sub-buffer of a user channel carrying a
// single "ev" record with field0 = value.
func buildEventSubBuffer(order binary.ByteOrder, value uint32, bufSize uint32) []byte {
	var payload []byte
	word := make([]byte, 4)
	order.PutUint32(word, eventHeaderWord(16, 10, 27)) // marker id 16, tsc low 10
	payload = append(payload, word...)
	field := make([]byte, 4)
	order.PutUint32(field, value)
	payload = append(payload, field...)
	return buildSubBuffer(order, 10, 10, bufSize, payload)
}

// writeSyntheticTrace builds a two-tracefile trace directory (metadata_0,
// chan0_0) under dir, each a single sub-buffer, and returns dir.
func writeSyntheticTrace(t *testing.T, value uint32) string {
	t.Helper()
	dir := t.TempDir()
	order := binary.LittleEndian

	const metaBufSize = 256
	meta := buildMetadataSubBuffer(order, magicLittleEndian, metaBufSize)
	if len(meta) != metaBufSize {
		t.Fatalf("metadata sub-buffer overflowed bufSize: got %d bytes, want <= %d", len(meta), metaBufSize)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata_0"), meta, 0o644); err != nil {
		t.Fatalf("writing metadata_0: %v", err)
	}

	const chanBufSize = 128
	chanBuf := buildEventSubBuffer(order, value, chanBufSize)
	if err := os.WriteFile(filepath.Join(dir, "chan0_0"), chanBuf, 0o644); err != nil {
		t.Fatalf("writing chan0_0: %v", err)
	}

	return dir
}

func TestOpenSyntheticTrace(t *testing.T) {
	dir := writeSyntheticTrace(t, 42)
	tr, err := Open(dir, OpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr.Close()

	cursors := tr.Cursors()
	if len(cursors) != 1 {
		t.Fatalf("got %d cursors, want 1", len(cursors))
	}
	c := cursors[0]
	if c.ChannelName() != "chan0" || c.CPU() != 0 {
		t.Fatalf("cursor = channel %q cpu %d, want chan0/0", c.ChannelName(), c.CPU())
	}

	if err := c.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	ev := c.Event()
	if ev.Marker == nil || ev.Marker.Name != "ev" {
		t.Fatalf("event marker = %+v, want \"ev\"", ev.Marker)
	}
	v, ok := ev.Field("field0")
	if !ok || v.Uint != 42 {
		t.Errorf("field0 = (%+v, %v), want (Uint:42, true)", v, ok)
	}
}

func TestOpenMissingMetadataChannel(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "chan0_0"), []byte{}, 0o644); err != nil {
		t.Fatalf("writing chan0_0: %v", err)
	}
	if _, err := Open(dir, OpenOptions{}); err != ErrNotATrace {
		t.Errorf("err = %v, want ErrNotATrace", err)
	}
}

func TestParseTracefileName(t *testing.T) {
	cases := []struct {
		name      string
		wantOK    bool
		channel   string
		cpu       int
	}{
		{"metadata_0", true, "metadata", 0},
		{"sched_3", true, "sched", 3},
		{"ust-1234.5678.9012", true, "ust", 0},
		{"noise", false, "", 0},
	}
	for _, c := range cases {
		got, ok := parseTracefileName(c.name)
		if ok != c.wantOK {
			t.Errorf("parseTracefileName(%q) ok = %v, want %v", c.name, ok, c.wantOK)
			continue
		}
		if ok && (got.channel != c.channel || got.cpu != c.cpu) {
			t.Errorf("parseTracefileName(%q) = %+v, want {%q, %d}", c.name, got, c.channel, c.cpu)
		}
	}
}
