// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import "fmt"

// parseFormat turns a marker's printf-like format string into an ordered
// field list, following the verb table below. Each recognized conversion
// produces one Field, named by its position ("field0", "field1", ...): the
// format grammar carries no field names, only the producer's source
// comments do, and those aren't part of the trace.
//
// intSize, longSize, pointerSize, and sizeTSize are the marker's declared
// arch-dependent widths (from a prior declare_id), used to resolve the
// arch-dependent verbs (%d, %ld, %zu, %p, ...).
func parseFormat(format string, intSize, longSize, pointerSize, sizeTSize, alignment uint8) ([]Field, int, int, error) {
	var fields []Field
	i := 0
	n := 0
	for i < len(format) {
		if format[i] != '%' {
			i++
			continue
		}
		i++
		if i < len(format) && format[i] == '%' {
			i++ // literal "%%"
			continue
		}

		// Length modifiers: hh, h, l, ll, z.
		length := ""
		for i < len(format) {
			switch format[i] {
			case 'h', 'l', 'z':
				length += string(format[i])
				i++
				continue
			}
			break
		}
		if i >= len(format) {
			return nil, 0, 0, fmt.Errorf("ltt: truncated format conversion in %q", format)
		}
		verb := format[i]
		i++

		f, err := fieldForVerb(verb, length, intSize, longSize, pointerSize, sizeTSize)
		if err != nil {
			return nil, 0, 0, err
		}
		f.Name = fmt.Sprintf("field%d", n)
		fields = append(fields, f)
		n++
	}

	largestAlign, size, err := computeLayout(fields, int(alignment))
	if err != nil {
		return nil, 0, 0, err
	}
	return fields, largestAlign, size, nil
}

func fieldForVerb(verb byte, length string, intSize, longSize, pointerSize, sizeTSize uint8) (Field, error) {
	mk := func(k Kind, size int) Field {
		return Field{Kind: k, Size: size, Align: size}
	}
	switch verb {
	case 'c':
		return mk(KindChar, 1), nil
	case 'd', 'i':
		switch length {
		case "hh":
			return mk(KindInt8, 1), nil
		case "h":
			return mk(KindShort, 2), nil
		case "l":
			return mk(KindLong, int(longSize)), nil
		case "ll":
			return mk(KindInt64, 8), nil
		case "z":
			return mk(KindSSizeT, int(sizeTSize)), nil
		case "":
			return mk(KindInt, int(intSize)), nil
		}
	case 'u':
		switch length {
		case "hh":
			return mk(KindUint8, 1), nil
		case "h":
			return mk(KindUShort, 2), nil
		case "l":
			return mk(KindULong, int(longSize)), nil
		case "ll":
			return mk(KindUint64, 8), nil
		case "z":
			return mk(KindSizeT, int(sizeTSize)), nil
		case "":
			return mk(KindUint, int(intSize)), nil
		}
	case 'f', 'e', 'g':
		if length == "l" {
			return mk(KindDouble, 8), nil
		}
		return mk(KindFloat, 4), nil
	case 's':
		return Field{Kind: KindString, Size: variableSize}, nil
	case 'p':
		return mk(KindPointer, int(pointerSize)), nil
	}
	return Field{}, fmt.Errorf("%w: %%%s%c", ErrUnknownFormatVerb, length, verb)
}

// computeLayout walks fields in order, assigning Offset (or variableSize)
// per the §4.5 computation rule, and returns the field list's largest_align
// and total size (variableSize if any field is variable).
//
// It also recurses into struct/array children so that aggregates built
// directly (rather than through parseFormat, which only emits scalars) get
// the same layout treatment; a marker whose fields were hand-assembled by a
// caller still gets correct offsets.
func computeLayout(fields []Field, alignment int) (largestAlign, totalSize int, err error) {
	offset := 0
	variable := false
	for idx := range fields {
		f := &fields[idx]
		if err := layoutOne(f, alignment); err != nil {
			return 0, 0, err
		}
		if f.Align > largestAlign {
			largestAlign = f.Align
		}
		if variable {
			f.Offset = variableSize
			continue
		}
		offset += alignPadding(offset, f.Align, alignment)
		f.Offset = offset
		if f.fixed() {
			offset += f.Size
		} else {
			variable = true
		}
	}
	if variable {
		return largestAlign, variableSize, nil
	}
	return largestAlign, offset, nil
}

// layoutOne resolves a single field's own Size/Align when it is an
// aggregate, recursing as needed. Scalars built by fieldForVerb already
// carry their Size/Align and are left untouched.
func layoutOne(f *Field, alignment int) error {
	switch f.Kind {
	case KindEnum:
		if len(f.Children) == 1 {
			f.Size = f.Children[0].Size
			f.Align = f.Children[0].Align
		}
	case KindArray:
		if f.ElemType == nil {
			return nil
		}
		if err := layoutOne(f.ElemType, alignment); err != nil {
			return err
		}
		f.Align = f.ElemType.Align
		if f.ElemType.fixed() {
			f.Size = f.ElemType.Size * f.ArrayLen
		} else {
			f.Size = variableSize
		}
	case KindSequence:
		// The element count is only known when a record is actually read
		// (§4.5's read-time size computation), so a sequence is always
		// variable regardless of its element type.
		if f.LenType != nil {
			if err := layoutOne(f.LenType, alignment); err != nil {
				return err
			}
		}
		if f.ElemType != nil {
			if err := layoutOne(f.ElemType, alignment); err != nil {
				return err
			}
			f.Align = f.ElemType.Align
		}
		f.Size = variableSize
	case KindStruct:
		align, size, err := computeLayout(f.Children, alignment)
		if err != nil {
			return err
		}
		f.Align = align
		f.Size = size
	case KindUnion:
		// Unions are fixed-size only if every alternative is fixed-size and
		// they all agree; both a variable-size alternative and a mixed-size
		// union are rejected outright (§4.5, and the design notes' explicit
		// "reject the marker" rule for variable-size union children).
		align := 0
		size := -2
		for i := range f.Children {
			if err := layoutOne(&f.Children[i], alignment); err != nil {
				return err
			}
			c := &f.Children[i]
			if c.Align > align {
				align = c.Align
			}
			if !c.fixed() {
				return ErrVariableUnion
			}
			if size == -2 {
				size = c.Size
			} else if c.Size != size {
				return ErrVariableUnion
			}
		}
		f.Align = align
		f.Size = size
	}
	return nil
}
