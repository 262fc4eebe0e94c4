// Package protocol defines the packet buffer and the frame format carried
// over a framewire stream.
package protocol

import "fmt"

// RawID marks a packet that is not bound to a frame id (stream windows).
const RawID = -1

// DefaultCapacity is the initial buffer size of an outbound packet and the
// growth step when a write runs past the end of the buffer.
const DefaultCapacity = 256

// Packet is a byte buffer with a single read/write cursor.
//
// Outbound packets start empty and are filled by a creator through the
// Write* methods; inbound packets are built finalized from a frame payload
// and consumed through the Read* methods. All multi-byte values are
// big-endian.
type Packet struct {
	id        int
	buf       []byte
	offset    int
	finalized bool
}

// NewPacket creates an empty, writable packet for the given frame id.
func NewPacket(id int) *Packet {
	return &Packet{
		id:  id,
		buf: make([]byte, DefaultCapacity),
	}
}

// NewWindow creates a raw packet of fixed initial size, used as a stream's
// receive or send staging area.
func NewWindow(size int) *Packet {
	return &Packet{
		id:  RawID,
		buf: make([]byte, size),
	}
}

// NewPayloadPacket wraps an inbound frame payload. The packet is finalized:
// it can be read from the start but never written.
func NewPayloadPacket(id int, payload []byte) *Packet {
	return &Packet{
		id:        id,
		buf:       payload,
		finalized: true,
	}
}

// ID returns the frame id, or RawID.
func (p *Packet) ID() int { return p.id }

// Bytes returns the underlying buffer. For a finalized packet this is
// exactly the payload.
func (p *Packet) Bytes() []byte { return p.buf }

// Offset returns the cursor position.
func (p *Packet) Offset() int { return p.offset }

// Cap returns the current buffer size.
func (p *Packet) Cap() int { return len(p.buf) }

// Remaining returns the number of bytes between the cursor and the end of
// the buffer.
func (p *Packet) Remaining() int { return len(p.buf) - p.offset }

// Finalized reports whether Finalize has been called.
func (p *Packet) Finalized() bool { return p.finalized }

// Seek moves the cursor to an absolute position. Positions outside the
// buffer are clamped.
func (p *Packet) Seek(pos int) {
	switch {
	case pos < 0:
		pos = 0
	case pos > len(p.buf):
		pos = len(p.buf)
	}
	p.offset = pos
}

// Rewind moves the cursor back to the start of the buffer.
func (p *Packet) Rewind() { p.Seek(0) }

// Purge discards every byte before the cursor, moves the rest down to
// offset 0 and resets the cursor. The buffer keeps its size.
func (p *Packet) Purge() {
	if p.offset == 0 {
		return
	}
	n := copy(p.buf, p.buf[p.offset:])
	clear(p.buf[n:])
	p.offset = 0
}

// Finalize trims the buffer to the bytes written so far and freezes the
// packet. Calling it again has no effect.
func (p *Packet) Finalize() {
	if p.finalized {
		return
	}
	trimmed := make([]byte, p.offset)
	copy(trimmed, p.buf[:p.offset])
	p.buf = trimmed
	p.offset = 0
	p.finalized = true
}

// ensure makes room for n more bytes at the cursor, growing the buffer in
// DefaultCapacity steps.
func (p *Packet) ensure(n int) error {
	if p.finalized {
		return fmt.Errorf("%w (id %d)", ErrFinalized, p.id)
	}
	need := p.offset + n
	if need <= len(p.buf) {
		return nil
	}
	size := len(p.buf) + DefaultCapacity
	for size < need {
		size += DefaultCapacity
	}
	grown := make([]byte, size)
	copy(grown, p.buf)
	p.buf = grown
	return nil
}

// take returns the next n bytes and advances the cursor.
func (p *Packet) take(n int) ([]byte, error) {
	if n < 0 || p.offset+n > len(p.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrShortPacket, n, p.offset, len(p.buf)-p.offset)
	}
	b := p.buf[p.offset : p.offset+n]
	p.offset += n
	return b, nil
}

// WriteByte appends one byte.
func (p *Packet) WriteByte(b byte) error {
	if err := p.ensure(1); err != nil {
		return err
	}
	p.buf[p.offset] = b
	p.offset++
	return nil
}

// WriteWord appends a big-endian uint16.
func (p *Packet) WriteWord(v uint16) error {
	if err := p.ensure(2); err != nil {
		return err
	}
	p.buf[p.offset] = byte(v >> 8)
	p.buf[p.offset+1] = byte(v)
	p.offset += 2
	return nil
}

// WriteDWord appends a big-endian uint32.
func (p *Packet) WriteDWord(v uint32) error {
	if err := p.ensure(4); err != nil {
		return err
	}
	p.buf[p.offset] = byte(v >> 24)
	p.buf[p.offset+1] = byte(v >> 16)
	p.buf[p.offset+2] = byte(v >> 8)
	p.buf[p.offset+3] = byte(v)
	p.offset += 4
	return nil
}

// WriteLong appends a uint64 as two big-endian uint32 halves, high half
// first.
func (p *Packet) WriteLong(v uint64) error {
	if err := p.WriteDWord(uint32(v >> 32)); err != nil {
		return err
	}
	return p.WriteDWord(uint32(v))
}

// WriteBytes appends raw bytes without a length prefix.
func (p *Packet) WriteBytes(b []byte) error {
	if err := p.ensure(len(b)); err != nil {
		return err
	}
	p.offset += copy(p.buf[p.offset:], b)
	return nil
}

// WriteByteArray appends a uint32 length prefix followed by the bytes.
func (p *Packet) WriteByteArray(b []byte) error {
	if err := p.ensure(4 + len(b)); err != nil {
		return err
	}
	if err := p.WriteDWord(uint32(len(b))); err != nil {
		return err
	}
	return p.WriteBytes(b)
}

// WriteBoolean appends 1 for true and 0 for false.
func (p *Packet) WriteBoolean(v bool) error {
	if v {
		return p.WriteByte(1)
	}
	return p.WriteByte(0)
}

// ReadByte reads one byte.
func (p *Packet) ReadByte() (byte, error) {
	b, err := p.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadWord reads a big-endian uint16.
func (p *Packet) ReadWord() (uint16, error) {
	b, err := p.take(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// ReadDWord reads a big-endian uint32.
func (p *Packet) ReadDWord() (uint32, error) {
	b, err := p.take(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// ReadLong reads a uint64 written by WriteLong.
func (p *Packet) ReadLong() (uint64, error) {
	hi, err := p.ReadDWord()
	if err != nil {
		return 0, err
	}
	lo, err := p.ReadDWord()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// ReadBytes reads n raw bytes. The returned slice is a copy.
func (p *Packet) ReadBytes(n int) ([]byte, error) {
	b, err := p.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadByteArray reads a uint32 length prefix and that many bytes.
func (p *Packet) ReadByteArray() ([]byte, error) {
	start := p.offset
	n, err := p.ReadDWord()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(p.Remaining()) {
		p.offset = start
		return nil, fmt.Errorf("%w: byte array declares %d bytes, %d remain",
			ErrShortPacket, n, p.Remaining())
	}
	return p.ReadBytes(int(n))
}

// ReadBoolean reads one byte; only 1 is true.
func (p *Packet) ReadBoolean() (bool, error) {
	b, err := p.ReadByte()
	if err != nil {
		return false, err
	}
	return b == 1, nil
}
