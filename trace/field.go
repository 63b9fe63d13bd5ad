// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

// variableSize marks a Field.Size or Field.Offset as not known until a
// record of this marker is actually read, per §4.5's "offset variable" rule.
const variableSize = -1

// Kind identifies which of the format parser's tagged-union field shapes a
// Field describes.
type Kind int

const (
	KindInt8 Kind = iota
	KindUint8
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindChar   // arch "char"
	KindUChar  // arch "unsigned char"
	KindShort  // arch "short"
	KindUShort // arch "unsigned short"
	KindInt    // arch-dependent width, from the marker's declared int_size
	KindUint   // arch-dependent width, from the marker's declared int_size
	KindLong   // arch-dependent width, from the marker's declared long_size
	KindULong  // arch-dependent width, from the marker's declared long_size
	KindSizeT  // arch-dependent width, from the marker's declared size_t_size
	KindSSizeT
	KindOffT
	KindFloat
	KindDouble
	KindPointer // arch-dependent width, from the marker's declared pointer_size
	KindString  // NUL-terminated
	KindEnum    // backed by an integer Field (Children[0])
	KindArray   // fixed-length; ElemType describes the element, ArrayLen its count
	KindSequence // length read from LenType at record-read time, then that many elements of ElemType
	KindStruct  // ordered Children, laid out like the top-level field list
	KindUnion   // Children are alternatives; all must share one size (§4.5)
)

// Field is one entry of a Marker's parsed field list: a typed, possibly
// nested descriptor with precomputed layout when the layout is static.
type Field struct {
	Name      string
	Kind      Kind
	Size      int // natural size in bytes; variableSize if this field's size depends on record contents
	Align     int // natural alignment in bytes
	Offset    int // byte offset from the start of the record's payload; variableSize if not statically known

	// Children holds nested fields for KindStruct (members in order),
	// KindUnion (alternatives), and KindEnum (exactly one element: the
	// backing integer field).
	Children []Field

	// ElemType applies to KindArray and KindSequence; ArrayLen applies to
	// KindArray only.
	ElemType *Field
	ArrayLen int

	// LenType applies to KindSequence: the field, read immediately before
	// the sequence's elements, whose value is the element count.
	LenType *Field
}

// fixed reports whether f's size (and therefore every descendant's offset)
// is known without reading a record.
func (f *Field) fixed() bool {
	return f.Size != variableSize
}

// FieldValue is a decoded field value as surfaced to a consumer via
// Event.Field. Exactly one of the typed accessors is meaningful, selected by
// Kind.
type FieldValue struct {
	Kind   Kind
	Int    int64
	Uint   uint64
	Float  float64
	Str    string
	Elems  []FieldValue // KindArray, KindSequence
	Fields []FieldValue // KindStruct; parallels the struct field's Children
}
