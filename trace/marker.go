// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

// markerCoreIDs is MARKER_CORE_IDS: marker ids below this value are reserved
// for the two core metadata records (§4.4); user markers start here.
const markerCoreIDs = 16

const (
	markerIDSetMarkerID     = 0 // MARKER_ID_SET_MARKER_ID
	markerIDSetMarkerFormat = 1 // MARKER_ID_SET_MARKER_FORMAT
)

// MarkerInfo is one catalog entry: a user marker's name, declared type
// sizes, and (once declare_format has run) its parsed field list.
type MarkerInfo struct {
	Channel Quark
	ID      uint16
	Name    string
	Format  string

	Fields       []Field
	LargestAlign int
	Size         int // variableSize if the record's total size varies

	intSize, longSize, pointerSize, sizeTSize, alignment uint8
}

// Field looks up a decoded field by name within event, returning (value,
// true), or (zero value, false) if the marker has no such field.
func (m *MarkerInfo) Field(event *Event, name string) (FieldValue, bool) {
	for i, f := range m.Fields {
		if f.Name == name && i < len(event.Fields) {
			return event.Fields[i], true
		}
	}
	return FieldValue{}, false
}

type markerKey struct {
	channel Quark
	id      uint16
}

type markerNameKey struct {
	channel Quark
	name    string
}

// markerCatalog is the per-trace table mapping (channel, marker-id) to
// MarkerInfo, populated exclusively by metadata record processing during
// open_trace and immutable afterward (§4.4's invariant, §5's shared-resource
// policy).
type markerCatalog struct {
	byID   map[markerKey]*MarkerInfo
	byName map[markerNameKey]*MarkerInfo
}

func newMarkerCatalog() *markerCatalog {
	return &markerCatalog{
		byID:   make(map[markerKey]*MarkerInfo),
		byName: make(map[markerNameKey]*MarkerInfo),
	}
}

// lookup returns the marker registered for (channel, id), or nil if none has
// been declared.
func (c *markerCatalog) lookup(channel Quark, id uint16) *MarkerInfo {
	return c.byID[markerKey{channel, id}]
}

// declareID allocates or updates the catalog entry for (channel, name),
// binding it to the numeric id and the type sizes the producer declared for
// it. Subsequent declare_format calls for the same name fill in the field
// list.
func (c *markerCatalog) declareID(channel Quark, name string, id uint16, intSize, longSize, pointerSize, sizeTSize, alignment uint8) *MarkerInfo {
	nk := markerNameKey{channel, name}
	info, ok := c.byName[nk]
	if !ok {
		info = &MarkerInfo{Channel: channel, Name: name, Size: variableSize}
		c.byName[nk] = info
	}
	info.ID = id
	info.intSize, info.longSize, info.pointerSize, info.sizeTSize, info.alignment =
		intSize, longSize, pointerSize, sizeTSize, alignment
	c.byID[markerKey{channel, id}] = info
	return info
}

// declareFormat parses format and stores the resulting field list, largest
// alignment, and fixed-or-variable size onto the catalog entry for
// (channel, name). The entry must already exist via declareID; a format
// declared for an unknown name is a metadata protocol violation.
func (c *markerCatalog) declareFormat(channel Quark, name, format string) (*MarkerInfo, error) {
	nk := markerNameKey{channel, name}
	info, ok := c.byName[nk]
	if !ok {
		return nil, &TraceError{
			Category: CategoryUnknownMarker,
			Channel:  "",
			Err:      ErrUnknownMarkerName,
		}
	}
	fields, largestAlign, size, err := parseFormat(format, info.intSize, info.longSize, info.pointerSize, info.sizeTSize, info.alignment)
	if err != nil {
		return nil, err
	}
	info.Format = format
	info.Fields = fields
	info.LargestAlign = largestAlign
	info.Size = size
	return info, nil
}
