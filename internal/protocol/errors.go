package protocol

import "errors"

var (
	ErrFinalized         = errors.New("protocol: write to finalized packet")
	ErrShortPacket       = errors.New("protocol: read past end of packet")
	ErrMalformedString   = errors.New("protocol: malformed utf-32 string")
	ErrFrameTooLarge     = errors.New("protocol: frame too large for receive window")
	ErrPacketTooLarge    = errors.New("protocol: packet too large for send window")
	ErrUnknownPacketID   = errors.New("protocol: no creator for packet id")
	ErrUnhandledPacketID = errors.New("protocol: no handler for packet id")
)
