// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import "testing"

func TestBufDecoderScalars(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x00, 0x03, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	bd := &bufDecoder{buf: buf, order: byteOrderFor(false)}
	if got := bd.u8(); got != 0x01 {
		t.Errorf("u8 = %#x, want 0x01", got)
	}
	if got := bd.u16(); got != 0x0002 {
		t.Errorf("u16 = %#x, want 0x0002", got)
	}
	if got := bd.u32(); got != 0x00000003 {
		t.Errorf("u32 = %#x, want 0x00000003", got)
	}
	if got := bd.u64(); got != 0x0000000000000004 {
		t.Errorf("u64 = %#x, want 0x0000000000000004", got)
	}
}

func TestBufDecoderCString(t *testing.T) {
	buf := append([]byte("hello\x00"), 0xff)
	bd := &bufDecoder{buf: buf}
	if got := bd.cstring(); got != "hello" {
		t.Errorf("cstring = %q, want %q", got, "hello")
	}
	if len(bd.buf) != 1 || bd.buf[0] != 0xff {
		t.Errorf("cstring left buf = %v, want one trailing 0xff byte", bd.buf)
	}
}

func TestAlignPaddingDisabledWhenZero(t *testing.T) {
	if got := alignPadding(3, 4, 0); got != 0 {
		t.Errorf("alignPadding with alignment 0 = %d, want 0", got)
	}
}

func TestAlignPaddingUsesSmallerOfNaturalAndAlignment(t *testing.T) {
	// natural size 2 is smaller than alignment 8, so align to 2.
	if got := alignPadding(3, 2, 8); got != 1 {
		t.Errorf("alignPadding(3, 2, 8) = %d, want 1", got)
	}
	if got := alignPadding(4, 2, 8); got != 0 {
		t.Errorf("alignPadding(4, 2, 8) = %d, want 0", got)
	}
}

func TestByteOrderFor(t *testing.T) {
	if byteOrderFor(false).String() != "LittleEndian" {
		t.Errorf("byteOrderFor(false) is not little-endian")
	}
	if byteOrderFor(true).String() != "BigEndian" {
		t.Errorf("byteOrderFor(true) is not big-endian")
	}
}
