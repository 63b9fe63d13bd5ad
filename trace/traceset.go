// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tracereader/ltt/internal/tracelog"
)

// OpenOptions controls how Open reads a trace directory. The zero value is
// the default: buf_size disagreements are skipped and flagged rather than
// fatal, no logger.
type OpenOptions struct {
	// Logger receives warnings for recoverable anomalies (corrupt
	// sub-buffers, buf_size disagreement, monotonicity violations). A nil
	// Logger discards them.
	Logger *tracelog.Helper

	// StrictBufSize, if true, makes a buf_size disagreement between a
	// sub-buffer header and the trace's established buf_size a fatal error
	// (CorruptSubBuffer) instead of the default skip-and-flag behavior
	// (§9's open question on this exact tradeoff; default follows the
	// "production reader should downgrade to a skipped-sub-buffer error"
	// resolution).
	StrictBufSize bool
}

// channelCursors is one channel's per-CPU cursor array; index i holds CPU i,
// or nil if that CPU's file is missing (§3's "gaps allowed").
type channelCursors struct {
	name    string
	quark   Quark
	cursors []*Cursor
}

// Trace is one open capture directory: its channel table, shared marker
// catalog, and trace-wide timing anchors (§3's Trace).
type Trace struct {
	dir     string
	params  *traceParams
	quarks  *quarkTable
	anomalies []Anomaly

	channels     map[string]*channelCursors
	channelOrder []string
}

// TraceSet is an ordered collection of independently opened Traces iterated
// together (§3's Trace set).
type TraceSet struct {
	traces []*Trace
}

type tracefileName struct {
	channel string
	cpu     int
}

// parseTracefileName recognizes the kernel-channel form "<channel>_<cpu>"
// and the userspace form "<channel>-<tid>.<pgid>.<creation>", matching
// get_tracefile_name_number: the rightmost underscore separates channel from
// CPU for the kernel form; the userspace form is recognized by a trailing
// "-<uint>.<uint>.<uint>" suffix and is grouped by its full prefix with
// CPU 0 (a userspace trace has exactly one stream per process, not per CPU).
func parseTracefileName(base string) (tracefileName, bool) {
	if i := strings.LastIndex(base, "-"); i >= 0 {
		suffix := base[i+1:]
		parts := strings.SplitN(suffix, ".", 3)
		if len(parts) == 3 {
			if _, err1 := strconv.ParseUint(parts[0], 10, 64); err1 == nil {
				if _, err2 := strconv.ParseUint(parts[1], 10, 64); err2 == nil {
					if _, err3 := strconv.ParseUint(parts[2], 10, 64); err3 == nil {
						return tracefileName{channel: base[:i], cpu: 0}, true
					}
				}
			}
		}
	}
	if i := strings.LastIndex(base, "_"); i >= 0 {
		if cpu, err := strconv.Atoi(base[i+1:]); err == nil && cpu >= 0 {
			return tracefileName{channel: base[:i], cpu: cpu}, true
		}
	}
	return tracefileName{}, false
}

// Open walks dir, groups its regular files into channels by
// parseTracefileName, opens every file as a Cursor, bootstraps the
// trace-wide header and marker catalog from the metadata channel, and
// returns a Trace whose other channels are positioned at their first event
// (§4.7).
func Open(dir string, opts OpenOptions) (*Trace, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]map[int]string) // channel -> cpu -> path
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name, ok := parseTracefileName(info.Name())
		if !ok {
			return nil
		}
		if grouped[name.channel] == nil {
			grouped[name.channel] = make(map[int]string)
		}
		grouped[name.channel][name.cpu] = path
		return nil
	})
	if err != nil {
		return nil, err
	}

	metaFiles, ok := grouped["metadata"]
	if !ok || len(metaFiles) == 0 {
		return nil, ErrNotATrace
	}

	log := opts.Logger
	if log == nil {
		log = tracelog.Default()
	}

	params, metaPath, err := bootstrapTraceHeader(metaFiles)
	if err != nil {
		return nil, err
	}
	quarks := newQuarkTable()
	params.catalog = newMarkerCatalog()
	params.quarks = quarks
	params.strictBufSize = opts.StrictBufSize

	t := &Trace{
		dir:      dir,
		params:   params,
		quarks:   quarks,
		channels: make(map[string]*channelCursors),
	}
	params.report = func(a Anomaly) { t.anomalies = append(t.anomalies, a) }

	metaQuark := quarks.intern("metadata")
	metaCursors := &channelCursors{name: "metadata", quark: metaQuark, cursors: make([]*Cursor, maxCPU(metaFiles)+1)}
	for cpu, path := range metaFiles {
		c, err := openCursor(path, "metadata", metaQuark, cpu, params, path == metaPath, log)
		if err != nil {
			log.Warnf("skipping tracefile %s: %v", path, err)
			continue
		}
		metaCursors.cursors[cpu] = c
	}
	t.channels["metadata"] = metaCursors
	t.channelOrder = append(t.channelOrder, "metadata")

	for _, c := range metaCursors.cursors {
		if c == nil {
			continue
		}
		if err := processMetadataTracefile(c); err != nil {
			return nil, err
		}
	}

	var channelNames []string
	for name := range grouped {
		if name == "metadata" {
			continue
		}
		channelNames = append(channelNames, name)
	}
	sortStrings(channelNames)

	for _, name := range channelNames {
		files := grouped[name]
		quark := quarks.intern(name)
		cc := &channelCursors{name: name, quark: quark, cursors: make([]*Cursor, maxCPU(files)+1)}
		for cpu, path := range files {
			c, err := openCursor(path, name, quark, cpu, params, false, log)
			if err != nil {
				log.Warnf("skipping tracefile %s: %v", path, err)
				continue
			}
			cc.cursors[cpu] = c
		}
		t.channels[name] = cc
		t.channelOrder = append(t.channelOrder, name)
	}

	return t, nil
}

func maxCPU(files map[int]string) int {
	max := 0
	for cpu := range files {
		if cpu > max {
			max = cpu
		}
	}
	return max
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// bootstrapTraceHeader reads the trace-wide header from whichever metadata
// file has the lowest CPU number, since reverse_byte_order and the timing
// anchors must be known before any cursor (including the metadata cursors
// themselves) can be opened.
func bootstrapTraceHeader(metaFiles map[int]string) (*traceParams, string, error) {
	lowest := -1
	var path string
	for cpu, p := range metaFiles {
		if lowest == -1 || cpu < lowest {
			lowest = cpu
			path = p
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	buf := make([]byte, commonHeaderSize+traceHeaderV23Size)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, "", err
	}
	h, reverse, err := decodeTraceHeader(buf[commonHeaderSize:])
	if err != nil {
		return nil, "", err
	}
	return newTraceParams(h, reverse), path, nil
}

// processMetadataTracefile walks one metadata cursor's file end-to-end,
// populating the trace's marker catalog (§4.7 step 6, §4.8). Events in the
// metadata channel must have id < MARKER_CORE_IDS, enforced inside
// Cursor.readUpdateEvent/readMetadataPayload.
func processMetadataTracefile(c *Cursor) error {
	for {
		err := c.Read()
		if err == ErrEndOfTrace {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close releases every tracefile cursor's mapping and file descriptor.
func (t *Trace) Close() {
	for _, cc := range t.channels {
		for _, c := range cc.cursors {
			if c != nil {
				c.close()
			}
		}
	}
}

// EventsLost returns the sum, across every channel and CPU, of the
// events_lost high-water mark (a supplemented read-only accessor; §3/§7
// define the counter but name no accessor).
func (t *Trace) EventsLost() uint64 {
	var total uint64
	for _, cc := range t.channels {
		for _, c := range cc.cursors {
			if c != nil {
				total += uint64(c.eventsLostHighWater)
			}
		}
	}
	return total
}

// CorruptSubBuffers returns the sum, across every channel and CPU, of the
// corrupted-sub-buffer high-water mark.
func (t *Trace) CorruptSubBuffers() uint64 {
	var total uint64
	for _, cc := range t.channels {
		for _, c := range cc.cursors {
			if c != nil {
				total += uint64(c.corruptHighWater)
			}
		}
	}
	return total
}

// Anomalies returns every recoverable condition accumulated while reading
// this trace so far.
func (t *Trace) Anomalies() []Anomaly {
	return t.anomalies
}

// TimeSpan returns the earliest begin time and latest end time across every
// open channel file of the trace.
func (t *Trace) TimeSpan() (LttTime, LttTime) {
	first := InfiniteTime
	last := ZeroTime
	for _, cc := range t.channels {
		for _, c := range cc.cursors {
			if c == nil {
				continue
			}
			// Read the first and last sub-buffer headers directly, so the
			// span does not depend on which sub-buffer is currently mapped.
			for i, off := range []int64{0, int64(c.numSubBuffers-1) * int64(c.bufSize)} {
				var raw [commonHeaderSize]byte
				if _, err := c.f.ReadAt(raw[:], off); err != nil {
					continue
				}
				h, _ := decodeCommonHeader(raw[:], c.params.order)
				if b := c.params.anchors.tscToTime(h.CycleCountBegin); i == 0 && b.Before(first) {
					first = b
				} else if e := c.params.anchors.tscToTime(h.CycleCountEnd); i == 1 && e.After(last) {
					last = e
				}
			}
		}
	}
	return first, last
}

// Cursors returns every non-nil tracefile cursor of the trace, for the
// merge iterator to heap-order (tracesession package).
func (t *Trace) Cursors() []*Cursor {
	var out []*Cursor
	for _, name := range t.channelOrder {
		if name == "metadata" {
			continue
		}
		for _, c := range t.channels[name].cursors {
			if c != nil {
				out = append(out, c)
			}
		}
	}
	return out
}

// Time reports the current event's timestamp; used by the merge iterator's
// heap ordering.
func (c *Cursor) Time() LttTime { return c.event.Time }

// Event returns the cursor's currently decoded event.
func (c *Cursor) Event() *Event { return &c.event }

// ChannelName and CPU identify which tracefile this cursor reads.
func (c *Cursor) ChannelName() string { return c.channel }
func (c *Cursor) CPU() int            { return c.cpu }

// OpenSet opens every directory in dirs as an independent Trace and returns
// them as one TraceSet. If any Open fails, every already-opened Trace is
// closed and the error is returned.
func OpenSet(dirs []string, opts OpenOptions) (*TraceSet, error) {
	ts := &TraceSet{}
	for _, dir := range dirs {
		tr, err := Open(dir, opts)
		if err != nil {
			ts.Close()
			return nil, err
		}
		ts.traces = append(ts.traces, tr)
	}
	return ts, nil
}

// Close closes every Trace in the set.
func (ts *TraceSet) Close() {
	for _, tr := range ts.traces {
		tr.Close()
	}
}

// Traces returns the set's Traces in open order.
func (ts *TraceSet) Traces() []*Trace { return ts.traces }

// TimeSpan returns (min over traces of first event time, max over traces of
// last event time), per §3's trace set time_span.
func (ts *TraceSet) TimeSpan() (LttTime, LttTime) {
	first := InfiniteTime
	last := ZeroTime
	for _, tr := range ts.traces {
		b, e := tr.TimeSpan()
		if b.Before(first) {
			first = b
		}
		if e.After(last) {
			last = e
		}
	}
	return first, last
}
