// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"encoding/binary"
	"fmt"
	"math"
)

// decodeFields decodes an ordered field list against a record's payload
// bytes, applying the same alignment rule the format parser used to
// precompute static offsets (§4.5's read-time size computation). It is used
// for every record, fixed-size or variable: the precomputed Offset is not
// consulted here, since walking in order is just as cheap and handles the
// variable case uniformly.
func decodeFields(buf []byte, fields []Field, order binary.ByteOrder, alignment int) ([]FieldValue, int, error) {
	vals := make([]FieldValue, len(fields))
	offset := 0
	for i := range fields {
		f := &fields[i]
		offset += alignPadding(offset, f.Align, alignment)
		if offset > len(buf) {
			return nil, 0, fmt.Errorf("ltt: field %q starts past end of record", f.Name)
		}
		v, n, err := decodeFieldValue(buf[offset:], f, order, alignment)
		if err != nil {
			return nil, 0, err
		}
		vals[i] = v
		offset += n
	}
	return vals, offset, nil
}

func decodeFieldValue(buf []byte, f *Field, order binary.ByteOrder, alignment int) (FieldValue, int, error) {
	bd := &bufDecoder{buf: buf, order: order}
	switch f.Kind {
	case KindChar, KindInt8:
		return FieldValue{Kind: f.Kind, Int: int64(int8(bd.u8()))}, 1, nil
	case KindUChar, KindUint8:
		return FieldValue{Kind: f.Kind, Uint: uint64(bd.u8())}, 1, nil
	case KindShort, KindInt16:
		return FieldValue{Kind: f.Kind, Int: int64(int16(bd.u16()))}, 2, nil
	case KindUShort, KindUint16:
		return FieldValue{Kind: f.Kind, Uint: uint64(bd.u16())}, 2, nil
	case KindInt32:
		return FieldValue{Kind: f.Kind, Int: int64(int32(bd.u32()))}, 4, nil
	case KindUint32:
		return FieldValue{Kind: f.Kind, Uint: uint64(bd.u32())}, 4, nil
	case KindInt64:
		return FieldValue{Kind: f.Kind, Int: int64(bd.u64())}, 8, nil
	case KindUint64:
		return FieldValue{Kind: f.Kind, Uint: bd.u64()}, 8, nil
	case KindInt, KindLong, KindSSizeT, KindOffT:
		v, err := signedOfSize(bd, f.Size)
		return FieldValue{Kind: f.Kind, Int: v}, f.Size, err
	case KindUint, KindULong, KindSizeT, KindPointer:
		v, err := unsignedOfSize(bd, f.Size)
		return FieldValue{Kind: f.Kind, Uint: v}, f.Size, err
	case KindFloat:
		return FieldValue{Kind: f.Kind, Float: float64(math.Float32frombits(bd.u32()))}, 4, nil
	case KindDouble:
		return FieldValue{Kind: f.Kind, Float: math.Float64frombits(bd.u64())}, 8, nil
	case KindString:
		s := bd.cstring()
		return FieldValue{Kind: f.Kind, Str: s}, len(s) + 1, nil
	case KindEnum:
		if len(f.Children) != 1 {
			return FieldValue{}, 0, fmt.Errorf("ltt: enum field %q has no backing type", f.Name)
		}
		v, n, err := decodeFieldValue(buf, &f.Children[0], order, alignment)
		v.Kind = KindEnum
		return v, n, err
	case KindArray:
		return decodeRepeated(buf, f.ElemType, f.ArrayLen, order, alignment, f.Kind)
	case KindSequence:
		lenVal, lenConsumed, err := decodeFieldValue(buf, f.LenType, order, alignment)
		if err != nil {
			return FieldValue{}, 0, err
		}
		count := int(lenVal.Uint)
		if f.LenType.Kind == KindInt || f.LenType.Kind == KindLong || f.LenType.Kind == KindInt32 || f.LenType.Kind == KindInt64 {
			count = int(lenVal.Int)
		}
		v, n, err := decodeRepeated(buf[lenConsumed:], f.ElemType, count, order, alignment, f.Kind)
		return v, lenConsumed + n, err
	case KindStruct:
		vals, n, err := decodeFields(buf, f.Children, order, alignment)
		return FieldValue{Kind: f.Kind, Fields: vals}, n, err
	case KindUnion:
		// The trace format carries no discriminant for which alternative is
		// present; the first alternative is decoded as representative. This
		// mirrors the upstream reader's own incomplete union support (§9's
		// design notes call this out explicitly).
		if len(f.Children) == 0 {
			return FieldValue{Kind: f.Kind}, 0, nil
		}
		v, n, err := decodeFieldValue(buf, &f.Children[0], order, alignment)
		v.Kind = KindUnion
		return v, n, err
	default:
		return FieldValue{}, 0, fmt.Errorf("ltt: unhandled field kind %d", f.Kind)
	}
}

func decodeRepeated(buf []byte, elem *Field, count int, order binary.ByteOrder, alignment int, kind Kind) (FieldValue, int, error) {
	elems := make([]FieldValue, count)
	offset := 0
	for i := 0; i < count; i++ {
		offset += alignPadding(offset, elem.Align, alignment)
		if offset > len(buf) {
			return FieldValue{}, 0, fmt.Errorf("ltt: array/sequence element %d starts past end of record", i)
		}
		v, n, err := decodeFieldValue(buf[offset:], elem, order, alignment)
		if err != nil {
			return FieldValue{}, 0, err
		}
		elems[i] = v
		offset += n
	}
	return FieldValue{Kind: kind, Elems: elems}, offset, nil
}

func signedOfSize(bd *bufDecoder, size int) (int64, error) {
	switch size {
	case 1:
		return int64(int8(bd.u8())), nil
	case 2:
		return int64(int16(bd.u16())), nil
	case 4:
		return int64(int32(bd.u32())), nil
	case 8:
		return int64(bd.u64()), nil
	default:
		return 0, fmt.Errorf("ltt: unsupported integer size %d", size)
	}
}

func unsignedOfSize(bd *bufDecoder, size int) (uint64, error) {
	switch size {
	case 1:
		return uint64(bd.u8()), nil
	case 2:
		return uint64(bd.u16()), nil
	case 4:
		return uint64(bd.u32()), nil
	case 8:
		return bd.u64(), nil
	default:
		return 0, fmt.Errorf("ltt: unsupported integer size %d", size)
	}
}
