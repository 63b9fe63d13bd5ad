// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/tracereader/ltt/internal/tracelog"
)

// unknownSize is the event-header sentinel meaning "size not carried by the
// header; infer it from marker metadata" (reserved ids 29 and 30 carry an
// explicit size; 31 and ordinary ids do not).
const unknownSize = ^uint32(0)

// traceParams are the trace-wide values every tracefile cursor of one Trace
// shares, resolved once from the metadata channel's sub-buffer 0 (§4.2's
// invariant that they're identical across every sub-buffer of a trace).
type traceParams struct {
	order          binary.ByteOrder
	alignment      uint8
	tscBits        uint8
	eventBits      uint8
	tscMask        uint64
	tscMaskNextBit uint64
	anchors        *timingAnchors
	catalog        *markerCatalog
	quarks         *quarkTable
	strictBufSize  bool
	report         func(Anomaly)
}

// metadataChannelName is the well-known channel holding core marker
// declarations (§4.7, §4.8); it is never looked up in the marker catalog
// like a user channel.
const metadataChannelName = "metadata"

func newTraceParams(h traceHeaderV23, reverse bool) *traceParams {
	tscBits := h.TSCBits
	tp := &traceParams{
		order:          byteOrderFor(reverse),
		alignment:      h.Alignment,
		tscBits:        tscBits,
		eventBits:      h.EventBits,
		tscMask:        (uint64(1) << tscBits) - 1,
		tscMaskNextBit: uint64(1) << tscBits,
	}
	startTime := LttTime{Sec: h.StartTimeSec, Nsec: uint32(h.StartTimeUsec * 1000)}
	tp.anchors = &timingAnchors{
		startFreq:        h.StartFreq,
		freqScale:        h.FreqScale,
		startTSC:         h.CycleCountBegin,
		startTime:        startTime,
		startTimeFromTSC: startTime,
	}
	return tp
}

// Cursor is a per-(channel, CPU) read cursor over one tracefile: a
// memory-mapped view of the sub-buffer currently under the read head, plus
// the running state needed to decode the next event (§3's Tracefile
// cursor).
type Cursor struct {
	path        string
	channel     string
	channelQuark Quark
	cpu         int

	f    *os.File
	size int64

	params *traceParams

	bufSize       uint32
	numSubBuffers int
	subBuffer     int
	mapping       mmap.MMap

	// isMetadataHeader is true only for the one cursor whose sub-buffer 0
	// carries the trace-wide header after the common prefix (§6's layout
	// table); every other cursor's sub-buffer 0 goes straight from the
	// common header into the first event.
	isMetadataHeader bool

	payloadStart int // byte offset within the mapped sub-buffer where events begin

	begin, end LttTime
	lostSize   uint32

	eventsLostHighWater   uint32
	corruptHighWater      uint32

	// offset is the nominal start of the event about to be (or currently)
	// decoded, relative to the mapped sub-buffer; 0 is the sentinel "before
	// the first event of this sub-buffer" (§4.6's state machine).
	offset int
	tsc    uint64 // running reconstructed 64-bit TSC

	// posOffset/posTSC snapshot offset/tsc as they stood immediately before
	// the most recent readUpdateEvent, so SavePosition can reproduce the
	// currently displayed event exactly (§4.6's seek_position).
	posOffset int
	posTSC    uint64

	// posPayloadOffset is the byte offset, within the mapped sub-buffer,
	// where the current event's field payload begins: start-of-header plus
	// the 4-byte header word and any reserved-id extended-header bytes, plus
	// the padding to the marker's largest alignment.
	// seekNextEvent adds the event's DataSize to this, not to posOffset,
	// since DataSize counts only the field payload.
	posPayloadOffset int

	lastEventTime LttTime
	event         Event

	log *tracelog.Helper
}

// openCursor memory-maps path and positions the cursor at sub-buffer 0,
// ready to read its first event. params must already carry the trace-wide
// byte order, alignment, and tscbits/eventbits resolved from the metadata
// channel.
func openCursor(path, channel string, channelQuark Quark, cpu int, params *traceParams, isMetadataHeader bool, log *tracelog.Helper) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() < commonHeaderSize {
		f.Close()
		return nil, ErrTooSmall
	}

	var hdrBuf [commonHeaderSize]byte
	if _, err := f.ReadAt(hdrBuf[:], 0); err != nil {
		f.Close()
		return nil, err
	}
	hdr, err := decodeCommonHeader(hdrBuf[:], params.order)
	if err != nil {
		f.Close()
		return nil, err
	}
	if hdr.BufSize == 0 || st.Size()%int64(hdr.BufSize) != 0 {
		f.Close()
		return nil, &TraceError{Category: CategoryCorruptSubBuffer, File: path, Err: ErrTooSmall}
	}

	c := &Cursor{
		path:             path,
		channel:          channel,
		channelQuark:     channelQuark,
		cpu:              cpu,
		f:                f,
		size:             st.Size(),
		params:           params,
		bufSize:          hdr.BufSize,
		numSubBuffers:    int(st.Size() / int64(hdr.BufSize)),
		isMetadataHeader: isMetadataHeader,
		log:              log,
	}
	if err := c.mapBlock(0); err != nil {
		c.f.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cursor) close() {
	if c.mapping != nil {
		c.mapping.Unmap()
		c.mapping = nil
	}
	c.f.Close()
}

// mapBlock unmaps the current sub-buffer, if any, and maps sub-buffer n in
// its place, decoding its header and resetting the event read head to
// "before the first event" (§4.6).
func (c *Cursor) mapBlock(n int) error {
	if n < 0 || n >= c.numSubBuffers {
		return fmt.Errorf("ltt: sub-buffer %d out of range (have %d)", n, c.numSubBuffers)
	}
	if c.mapping != nil {
		c.mapping.Unmap()
		c.mapping = nil
	}
	mapping, err := mmap.MapRegion(c.f, int(c.bufSize), mmap.RDONLY, 0, int64(n)*int64(c.bufSize))
	if err != nil {
		return fmt.Errorf("ltt: mmap sub-buffer %d of %s: %w", n, c.path, err)
	}
	c.mapping = mapping
	c.subBuffer = n

	hdr, err := decodeCommonHeader(mapping, c.params.order)
	if err != nil {
		return err
	}
	if hdr.BufSize != c.bufSize {
		if c.params.strictBufSize {
			return &TraceError{Category: CategoryCorruptSubBuffer, File: c.path, Channel: c.channel, CPU: c.cpu,
				Expected: c.bufSize, Got: hdr.BufSize}
		}
		if c.log != nil {
			c.log.Warnf("sub-buffer %d of %s: buf_size %d disagrees with trace buf_size %d, treating as corrupt", n, c.path, hdr.BufSize, c.bufSize)
		}
		if c.params.report != nil {
			c.params.report(Anomaly{Channel: c.channel, CPU: c.cpu, Kind: "buf_size_mismatch",
				Detail: fmt.Sprintf("sub-buffer %d: header buf_size %d, trace buf_size %d", n, hdr.BufSize, c.bufSize)})
		}
		c.corruptHighWater++
	}
	if hdr.EventsLost > c.eventsLostHighWater {
		c.eventsLostHighWater = hdr.EventsLost
	}
	if hdr.SubBufCorrupt > c.corruptHighWater {
		c.corruptHighWater = hdr.SubBufCorrupt
	}

	c.begin = c.params.anchors.tscToTime(hdr.CycleCountBegin)
	c.end = c.params.anchors.tscToTime(hdr.CycleCountEnd)
	c.lostSize = hdr.LostSize
	if hdr.BufSize != c.bufSize {
		// A sub-buffer flagged corrupt is skipped: an empty live region makes
		// seekNextEvent report ErrEndOfBuffer at once.
		c.lostSize = c.bufSize
	}
	c.tsc = hdr.CycleCountBegin
	c.offset = 0

	if n == 0 && c.isMetadataHeader {
		c.payloadStart = commonHeaderSize + traceHeaderV23Size
	} else {
		c.payloadStart = commonHeaderSize
	}
	return nil
}

// seekNextEvent advances the offset to the next event's nominal start,
// mirroring ltt_seek_next_event: from the "before first event" sentinel it
// lands on the sub-buffer's payload start; otherwise it lands just past the
// current event's payload. Returns ErrEndOfBuffer once that position would
// be at or past the sub-buffer's live region.
func (c *Cursor) seekNextEvent() error {
	if c.offset == 0 {
		c.offset = c.payloadStart
	} else {
		c.offset = c.posPayloadOffset + int(c.event.DataSize)
	}
	limit := int(c.bufSize) - int(c.lostSize)
	if c.offset >= limit {
		return ErrEndOfBuffer
	}
	return nil
}

// readUpdateEvent decodes the 4-byte header word at the current offset,
// follows the extended-header chain, decodes the marker's fields, and
// updates the cursor's running TSC and event view (§4.3, §4.6).
func (c *Cursor) readUpdateEvent() error {
	start := c.offset
	pad := alignPadding(start, 4, int(c.params.alignment))
	headerStart := start + pad
	if headerStart+4 > len(c.mapping) {
		return &TraceError{Category: CategoryCorruptSubBuffer, File: c.path, Channel: c.channel, CPU: c.cpu}
	}

	c.posOffset = start
	c.posTSC = c.tsc

	bd := &bufDecoder{buf: c.mapping[headerStart:], order: c.params.order}
	word := bd.u32()
	eventIDRaw := uint32(word >> c.params.tscBits)
	tscLow := uint64(word) & c.params.tscMask

	var realID uint16
	declaredSize := unknownSize
	var fullTSC uint64
	haveFullTSC := false

	switch eventIDRaw {
	case 29:
		realID = bd.u16()
		sz := bd.u16()
		if sz == 0xFFFF {
			declaredSize = bd.u32()
		} else {
			declaredSize = uint32(sz)
		}
		consumedSoFar := headerStart + (4 + 2 + 2)
		if sz == 0xFFFF {
			consumedSoFar += 4
		}
		bd.align(consumedSoFar, 8, int(c.params.alignment))
		fullTSC = bd.u64()
		haveFullTSC = true
	case 30:
		realID = bd.u16()
		sz := bd.u16()
		if sz == 0xFFFF {
			declaredSize = bd.u32()
		} else {
			declaredSize = uint32(sz)
		}
	case 31:
		realID = bd.u16()
	default:
		realID = uint16(eventIDRaw)
	}

	if haveFullTSC {
		c.tsc = fullTSC
	} else {
		c.tsc = extendTSC(c.tsc, tscLow, c.params.tscMask, c.params.tscMaskNextBit)
	}
	eventTime := c.params.anchors.tscToTime(c.tsc)
	if eventTime.Before(c.lastEventTime) {
		if c.log != nil {
			c.log.Warnf("%s: event_time decreased relative to the previous event on this cursor", c.path)
		}
		if c.params.report != nil {
			c.params.report(Anomaly{Channel: c.channel, CPU: c.cpu, Kind: "monotonicity",
				Detail: "event_time decreased relative to the previous event on this cursor"})
		}
	}
	c.lastEventTime = eventTime

	payloadOffset := headerStart + (len(c.mapping[headerStart:]) - len(bd.buf))
	c.posPayloadOffset = payloadOffset

	if c.channel == metadataChannelName && realID < markerCoreIDs {
		return c.readMetadataPayload(realID, declaredSize, payloadOffset, eventTime)
	}

	marker := c.params.catalog.lookup(c.channelQuark, realID)
	if marker == nil {
		return &TraceError{Category: CategoryUnknownMarker, File: c.path, Channel: c.channel, CPU: c.cpu, MarkerID: realID}
	}

	// The field payload starts only after padding out to the marker's
	// largest_align under the trace's alignment policy, not right after the
	// header word (§3's event-record decode step 4).
	payloadOffset += alignPadding(payloadOffset, marker.LargestAlign, int(c.params.alignment))
	c.posPayloadOffset = payloadOffset

	var payload []byte
	if payloadOffset <= len(c.mapping) {
		payload = c.mapping[payloadOffset:]
	}
	values, computedSize, err := decodeFields(payload, marker.Fields, c.params.order, int(c.params.alignment))
	if err != nil {
		return &TraceError{Category: CategoryInconsistentSize, File: c.path, Channel: c.channel, CPU: c.cpu, MarkerID: realID, Err: err}
	}
	if declaredSize != unknownSize && declaredSize != uint32(computedSize) {
		return &TraceError{
			Category: CategoryInconsistentSize,
			File:     c.path,
			Channel:  c.channel,
			CPU:      c.cpu,
			MarkerID: realID,
			Expected: declaredSize,
			Got:      uint32(computedSize),
		}
	}

	c.event = Event{
		Channel:  c.channel,
		CPU:      c.cpu,
		Marker:   marker,
		ID:       realID,
		TSC:      c.tsc,
		Time:     eventTime,
		DataSize: uint32(computedSize),
		Fields:   values,
	}
	return nil
}

// readMetadataPayload parses one of the two core marker records that appear
// only on the metadata channel (§4.8): MARKER_ID_SET_MARKER_ID declares a
// marker's numeric id and type-sizes; MARKER_ID_SET_MARKER_FORMAT supplies
// its format string, which the format parser (§4.5) turns into a field
// list. Any other core id is a fatal trace error.
func (c *Cursor) readMetadataPayload(realID uint16, declaredSize uint32, payloadOffset int, eventTime LttTime) error {
	var payload []byte
	if payloadOffset <= len(c.mapping) {
		payload = c.mapping[payloadOffset:]
	}
	origLen := len(payload)
	bd := &bufDecoder{buf: payload, order: c.params.order}
	channelName := bd.cstring()
	markerName := bd.cstring()

	switch realID {
	case markerIDSetMarkerID:
		consumed := payloadOffset + (origLen - len(bd.buf))
		bd.align(consumed, 2, int(c.params.alignment))
		id := bd.u16()
		intSize := bd.u8()
		longSize := bd.u8()
		pointerSize := bd.u8()
		sizeTSize := bd.u8()
		alignment := bd.u8()
		ch := c.params.quarks.intern(channelName)
		c.params.catalog.declareID(ch, markerName, id, intSize, longSize, pointerSize, sizeTSize, alignment)
	case markerIDSetMarkerFormat:
		format := bd.cstring()
		ch := c.params.quarks.intern(channelName)
		if _, err := c.params.catalog.declareFormat(ch, markerName, format); err != nil {
			return err
		}
	default:
		return &TraceError{Category: CategoryUnknownMarker, File: c.path, Channel: c.channel, CPU: c.cpu, MarkerID: realID}
	}

	dataSize := uint32(origLen - len(bd.buf))
	if declaredSize != unknownSize && declaredSize != dataSize {
		return &TraceError{
			Category: CategoryInconsistentSize,
			File:     c.path,
			Channel:  c.channel,
			CPU:      c.cpu,
			MarkerID: realID,
			Expected: declaredSize,
			Got:      dataSize,
		}
	}

	c.event = Event{Channel: c.channel, CPU: c.cpu, ID: realID, TSC: c.tsc, Time: eventTime, DataSize: dataSize}
	return nil
}

// Read advances the cursor to the next event, crossing into the following
// sub-buffer when the current one is exhausted, and returns ErrEndOfTrace
// once the last sub-buffer's last event has been consumed (§4.6's read()).
func (c *Cursor) Read() error {
	for {
		err := c.seekNextEvent()
		if err == ErrEndOfBuffer {
			if c.subBuffer+1 >= c.numSubBuffers {
				return ErrEndOfTrace
			}
			if err := c.mapBlock(c.subBuffer + 1); err != nil {
				return err
			}
			continue
		} else if err != nil {
			return err
		}
		break
	}
	return c.readUpdateEvent()
}

// SeekTime positions the cursor at the first event with event_time ≥ t,
// binary-searching sub-buffers by their (begin, end) time window and then
// reading linearly within the winning sub-buffer (§4.6's seek_time).
func (c *Cursor) SeekTime(t LttTime) error {
	if err := c.mapBlock(0); err != nil {
		return err
	}
	if !t.After(c.begin) {
		return c.Read()
	}
	if err := c.mapBlock(c.numSubBuffers - 1); err != nil {
		return err
	}
	if t.After(c.end) {
		return ErrOutOfRange
	}

	low, high := 0, c.numSubBuffers-1
	for low < high {
		mid := low + (high-low)/2
		if err := c.mapBlock(mid); err != nil {
			return err
		}
		if c.end.Before(t) {
			low = mid + 1
		} else {
			high = mid
		}
	}
	if c.subBuffer != low {
		if err := c.mapBlock(low); err != nil {
			return err
		}
	}

	for {
		if err := c.Read(); err != nil {
			return err
		}
		if !c.event.Time.Before(t) {
			return nil
		}
	}
}

// Position is an opaque, per-cursor save point (§3's Position token):
// restoring it reproduces the currently displayed event exactly.
type Position struct {
	subBuffer int
	offset    int
	tsc       uint64
}

// SavePosition captures the cursor's current event as a Position.
func (c *Cursor) SavePosition() Position {
	return Position{subBuffer: c.subBuffer, offset: c.posOffset, tsc: c.posTSC}
}

// SeekPosition restores a Position previously saved from this same cursor
// (§4.6's seek_position): re-maps the sub-buffer if needed, restores the
// running TSC baseline, and re-decodes the event.
func (c *Cursor) SeekPosition(pos Position) error {
	if c.subBuffer != pos.subBuffer {
		if err := c.mapBlock(pos.subBuffer); err != nil {
			return err
		}
	}
	c.offset = pos.offset
	c.tsc = pos.tsc
	return c.readUpdateEvent()
}
