// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import "encoding/binary"

// bufDecoder is an unaligned, bounds-free cursor over a mapped sub-buffer.
// It never fails: callers are responsible for keeping buf within the
// sub-buffer's bounds before calling any read.
type bufDecoder struct {
	buf   []byte
	order binary.ByteOrder
}

func (b *bufDecoder) skip(n int) {
	b.buf = b.buf[n:]
}

func (b *bufDecoder) u8() uint8 {
	x := b.buf[0]
	b.buf = b.buf[1:]
	return x
}

func (b *bufDecoder) u16() uint16 {
	x := b.order.Uint16(b.buf)
	b.buf = b.buf[2:]
	return x
}

func (b *bufDecoder) u32() uint32 {
	x := b.order.Uint32(b.buf)
	b.buf = b.buf[4:]
	return x
}

func (b *bufDecoder) u64() uint64 {
	x := b.order.Uint64(b.buf)
	b.buf = b.buf[8:]
	return x
}

// cstring reads a NUL-terminated string and advances past the terminator.
func (b *bufDecoder) cstring() string {
	for i, c := range b.buf {
		if c == 0 {
			s := string(b.buf[:i])
			b.buf = b.buf[i+1:]
			return s
		}
	}
	s := string(b.buf)
	b.buf = nil
	return s
}

// align advances past the padding bytes needed to land at min(alignment,
// natural size) relative to the sub-buffer start, mirroring ltt_align: when
// alignment is 0, alignment is disabled entirely.
func (b *bufDecoder) align(subBufOffset int, naturalSize int, alignment int) {
	pad := alignPadding(subBufOffset, naturalSize, alignment)
	if pad > 0 {
		b.skip(pad)
	}
}

// alignPadding returns the number of padding bytes to add to offset so that
// it lands on a multiple of min(alignment, naturalSize). alignment == 0
// disables alignment (returns 0 unconditionally), matching the trace-wide
// "alignment" header field of 0 for unaligned producers.
func alignPadding(offset, naturalSize, alignment int) int {
	if alignment == 0 {
		return 0
	}
	align := alignment
	if naturalSize < align {
		align = naturalSize
	}
	if align <= 1 {
		return 0
	}
	return (align - (offset % align)) % align
}

func byteOrderFor(reverse bool) binary.ByteOrder {
	if reverse {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
