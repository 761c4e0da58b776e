// Package ipc provides the shared-memory side of request/response exchange:
// fixed-size byte buffers addressed by offset, a pool of them addressed by
// slot, and a mailbox of frames that reference pool slots.
package ipc

import (
	"encoding/binary"
	"fmt"

	"github.com/c360/ringkit/errors"
)

// ByteBuf is a fixed-length region read and written at byte offsets. Multi-
// byte values are little endian. Every access is bounds checked and fails
// with errors.ErrIndexOutOfRange instead of panicking.
type ByteBuf struct {
	mem []byte
}

// NewByteBuf allocates a zeroed buffer of n bytes.
func NewByteBuf(n int) *ByteBuf {
	return &ByteBuf{mem: make([]byte, max(n, 0))}
}

// Len returns the buffer length.
func (b *ByteBuf) Len() int { return len(b.mem) }

func (b *ByteBuf) span(op string, off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(b.mem)-n {
		return nil, errors.WrapInvalid(errors.ErrIndexOutOfRange, "ByteBuf", op,
			fmt.Sprintf("access [%d,%d) of %d", off, off+n, len(b.mem)))
	}
	return b.mem[off : off+n], nil
}

// CopyTo fills dst from the buffer starting at off.
func (b *ByteBuf) CopyTo(off int, dst []byte) error {
	src, err := b.span("CopyTo", off, len(dst))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// CopyFrom writes src into the buffer starting at off.
func (b *ByteBuf) CopyFrom(off int, src []byte) error {
	dst, err := b.span("CopyFrom", off, len(src))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// Rd8 reads the byte at off.
func (b *ByteBuf) Rd8(off int) (uint8, error) {
	p, err := b.span("Rd8", off, 1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// Wr8 writes v at off.
func (b *ByteBuf) Wr8(off int, v uint8) error {
	p, err := b.span("Wr8", off, 1)
	if err != nil {
		return err
	}
	p[0] = v
	return nil
}

// Rd16 reads a little-endian uint16 at off.
func (b *ByteBuf) Rd16(off int) (uint16, error) {
	p, err := b.span("Rd16", off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

// Wr16 writes v as a little-endian uint16 at off.
func (b *ByteBuf) Wr16(off int, v uint16) error {
	p, err := b.span("Wr16", off, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(p, v)
	return nil
}

// Rd32 reads a little-endian uint32 at off.
func (b *ByteBuf) Rd32(off int) (uint32, error) {
	p, err := b.span("Rd32", off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// Wr32 writes v as a little-endian uint32 at off.
func (b *ByteBuf) Wr32(off int, v uint32) error {
	p, err := b.span("Wr32", off, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(p, v)
	return nil
}

// Rd64 reads a little-endian uint64 at off.
func (b *ByteBuf) Rd64(off int) (uint64, error) {
	p, err := b.span("Rd64", off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// Wr64 writes v as a little-endian uint64 at off.
func (b *ByteBuf) Wr64(off int, v uint64) error {
	p, err := b.span("Wr64", off, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(p, v)
	return nil
}

// Zero clears the whole buffer.
func (b *ByteBuf) Zero() {
	clear(b.mem)
}
