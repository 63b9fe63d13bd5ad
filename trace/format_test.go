// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"errors"
	"testing"
)

func TestParseFormatScalar(t *testing.T) {
	fields, align, size, err := parseFormat("%u", 4, 8, 8, 8, 4)
	if err != nil {
		t.Fatalf("parseFormat: %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("got %d fields, want 1", len(fields))
	}
	if fields[0].Kind != KindUint || fields[0].Size != 4 {
		t.Errorf("field0 = %+v, want KindUint size 4", fields[0])
	}
	if align != 4 || size != 4 {
		t.Errorf("layout = (align %d, size %d), want (4, 4)", align, size)
	}
}

func TestParseFormatMixedFixedAndVariable(t *testing.T) {
	// "%s %d": a variable string followed by a fixed int. Per §4.5, the
	// int's offset becomes variable too, and the total size is variable.
	fields, _, size, err := parseFormat("%s %d", 4, 8, 8, 8, 4)
	if err != nil {
		t.Fatalf("parseFormat: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	if fields[0].Kind != KindString || fields[0].Offset != 0 {
		t.Errorf("field0 = %+v, want KindString at offset 0", fields[0])
	}
	if fields[1].Offset != variableSize {
		t.Errorf("field1.Offset = %d, want variableSize", fields[1].Offset)
	}
	if size != variableSize {
		t.Errorf("size = %d, want variableSize", size)
	}
}

func TestParseFormatUnknownVerb(t *testing.T) {
	if _, _, _, err := parseFormat("%q", 4, 8, 8, 8, 4); !errors.Is(err, ErrUnknownFormatVerb) {
		t.Errorf("err = %v, want ErrUnknownFormatVerb", err)
	}
}

func TestComputeLayoutUnionRejectsVariable(t *testing.T) {
	fields := []Field{{
		Kind: KindUnion,
		Children: []Field{
			{Kind: KindInt32, Size: 4, Align: 4},
			{Kind: KindString, Size: variableSize},
		},
	}}
	if _, _, err := computeLayout(fields, 4); !errors.Is(err, ErrVariableUnion) {
		t.Errorf("err = %v, want ErrVariableUnion", err)
	}
}

func TestComputeLayoutUnionRejectsMixedSize(t *testing.T) {
	fields := []Field{{
		Kind: KindUnion,
		Children: []Field{
			{Kind: KindInt32, Size: 4, Align: 4},
			{Kind: KindInt64, Size: 8, Align: 8},
		},
	}}
	if _, _, err := computeLayout(fields, 4); !errors.Is(err, ErrVariableUnion) {
		t.Errorf("err = %v, want ErrVariableUnion", err)
	}
}

func TestComputeLayoutStructAlignmentPadding(t *testing.T) {
	// A 1-byte field followed by a 4-byte-aligned field must be padded.
	fields := []Field{
		{Kind: KindInt8, Size: 1, Align: 1},
		{Kind: KindInt32, Size: 4, Align: 4},
	}
	align, size, err := computeLayout(fields, 4)
	if err != nil {
		t.Fatalf("computeLayout: %v", err)
	}
	if fields[1].Offset != 4 {
		t.Errorf("field1.Offset = %d, want 4 (padded)", fields[1].Offset)
	}
	if align != 4 || size != 8 {
		t.Errorf("layout = (align %d, size %d), want (4, 8)", align, size)
	}
}
