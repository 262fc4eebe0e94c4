package protocol

import (
	"fmt"

	"golang.org/x/text/encoding/unicode/utf32"
)

// utf32Codec is little-endian UTF-32 without a byte order mark, the string
// encoding existing peers put on the wire.
var utf32Codec = utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)

// WriteString appends s as a UTF-32 encoded byte array.
func (p *Packet) WriteString(s string) error {
	if p.finalized {
		return fmt.Errorf("%w (id %d)", ErrFinalized, p.id)
	}
	b, err := utf32Codec.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("protocol: encode string: %w", err)
	}
	return p.WriteByteArray(b)
}

// ReadString reads a UTF-32 encoded byte array written by WriteString.
func (p *Packet) ReadString() (string, error) {
	b, err := p.ReadByteArray()
	if err != nil {
		return "", err
	}
	if len(b)%4 != 0 {
		return "", fmt.Errorf("%w: utf-32 string of %d bytes", ErrMalformedString, len(b))
	}
	s, err := utf32Codec.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedString, err)
	}
	return string(s), nil
}
