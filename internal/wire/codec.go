package wire

import (
	"encoding/binary"
)

// Encoder accumulates a response/event body using the same manual
// little-endian-cursor style original_source's write_uint16/write_uint32/
// write_string helpers use.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// U8 appends a single byte.
func (e *Encoder) U8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

// U16 appends a little-endian uint16.
func (e *Encoder) U16(v uint16) *Encoder {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// U32 appends a little-endian uint32.
func (e *Encoder) U32(v uint32) *Encoder {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// U64 appends a little-endian uint64.
func (e *Encoder) U64(v uint64) *Encoder {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// Bytes appends raw bytes verbatim (used for memory blocks).
func (e *Encoder) Bytes(v []byte) *Encoder {
	e.buf = append(e.buf, v...)
	return e
}

// LString appends a length-prefixed (1-byte length) string, the
// convention original_source's write_string helper uses for drive
// filenames and similar short text.
func (e *Encoder) LString(s string) *Encoder {
	e.U8(uint8(len(s)))
	e.buf = append(e.buf, []byte(s)...)
	return e
}

// Body returns the accumulated bytes.
func (e *Encoder) Body() []byte {
	return e.buf
}

// Decoder walks a body left to right, matching the handlers' own manual
// cursor bookkeeping in original_source.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps a body for sequential decoding.
func NewDecoder(body []byte) *Decoder {
	return &Decoder{buf: body}
}

// Remaining returns how many bytes are left to read.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// U8 reads one byte. Returns 0 if past the end; callers are expected to
// have already validated length before calling.
func (d *Decoder) U8() uint8 {
	if d.pos >= len(d.buf) {
		return 0
	}
	v := d.buf[d.pos]
	d.pos++
	return v
}

// U16 reads a little-endian uint16.
func (d *Decoder) U16() uint16 {
	if d.pos+2 > len(d.buf) {
		return 0
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v
}

// U32 reads a little-endian uint32.
func (d *Decoder) U32() uint32 {
	if d.pos+4 > len(d.buf) {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v
}

// Bytes reads n raw bytes.
func (d *Decoder) Bytes(n int) []byte {
	if d.pos+n > len(d.buf) {
		n = len(d.buf) - d.pos
	}
	if n < 0 {
		n = 0
	}
	v := d.buf[d.pos : d.pos+n]
	d.pos += n
	return v
}

// LString reads a 1-byte-length-prefixed string.
func (d *Decoder) LString() string {
	n := int(d.U8())
	return string(d.Bytes(n))
}
