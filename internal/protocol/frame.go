package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame layout: id(1) + payload length(2, big-endian) + payload.
const (
	HeaderSize     = 3
	MaxPayloadSize = 0xFFFF
	MaxFrameSize   = HeaderSize + MaxPayloadSize
)

// Header is the decoded 3-byte frame header.
type Header struct {
	ID     uint8
	Length uint16
}

// FrameSize returns the number of wire bytes of the whole frame.
func (h Header) FrameSize() int { return HeaderSize + int(h.Length) }

// PutHeader writes h into the first HeaderSize bytes of b.
func PutHeader(b []byte, h Header) {
	b[0] = h.ID
	binary.BigEndian.PutUint16(b[1:3], h.Length)
}

// ParseHeader decodes a frame header from the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrShortPacket, HeaderSize, len(b))
	}
	return Header{
		ID:     b[0],
		Length: binary.BigEndian.Uint16(b[1:3]),
	}, nil
}

// FrameHeader returns the header a finalized packet is sent with.
func FrameHeader(pkt *Packet) (Header, error) {
	if pkt.id < 0 || pkt.id > 0xFF {
		return Header{}, fmt.Errorf("protocol: packet id %d does not fit the frame header", pkt.id)
	}
	size := len(pkt.buf)
	if !pkt.finalized {
		size = pkt.offset
	}
	if size > MaxPayloadSize {
		return Header{}, fmt.Errorf("%w: id %d payload is %d bytes, limit %d",
			ErrPacketTooLarge, pkt.id, size, MaxPayloadSize)
	}
	return Header{ID: uint8(pkt.id), Length: uint16(size)}, nil
}

// EncodeFrame finalizes pkt and serializes it as one frame.
func EncodeFrame(pkt *Packet) ([]byte, error) {
	pkt.Finalize()
	h, err := FrameHeader(pkt)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, h.FrameSize())
	PutHeader(buf, h)
	copy(buf[HeaderSize:], pkt.buf)
	return buf, nil
}

// DecodeFrame parses one complete frame from data and returns the payload
// packet together with the number of bytes consumed.
func DecodeFrame(data []byte) (*Packet, int, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < h.FrameSize() {
		return nil, 0, fmt.Errorf("%w: frame id %d needs %d bytes, have %d",
			ErrShortPacket, h.ID, h.FrameSize(), len(data))
	}
	payload := make([]byte, h.Length)
	copy(payload, data[HeaderSize:h.FrameSize()])
	return NewPayloadPacket(int(h.ID), payload), h.FrameSize(), nil
}
