package stream

import (
	"errors"
	"fmt"
	"io"

	"github.com/1ureka/framewire/internal/protocol"
)

// receiveLoop reads into the free tail of the receive window and parses
// whatever complete frames the read produced. It is the only goroutine that
// touches s.recv.
func (s *Stream) receiveLoop() {
	defer s.wg.Done()

	for {
		free := s.recv.Bytes()[s.recv.Offset():]
		n, err := s.conn.Read(free)
		if n > 0 {
			s.obs.BytesRead(n)
			s.recv.Seek(s.recv.Offset() + n)
			if perr := s.parseFrames(); perr != nil {
				s.fail(perr)
				return
			}
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.fail(fmt.Errorf("%w: peer closed the connection", ErrTransport))
			} else {
				s.fail(fmt.Errorf("%w: read: %w", ErrTransport, err))
			}
			return
		}
	}
}

// parseFrames extracts every complete frame between offset 0 and the
// window cursor. A trailing partial frame stays in the window with the
// cursor at its end.
func (s *Stream) parseFrames() error {
	for s.recv.Offset() >= protocol.HeaderSize {
		end := s.recv.Offset()
		h, err := protocol.ParseHeader(s.recv.Bytes()[:end])
		if err != nil {
			return err
		}

		size := h.FrameSize()
		if size > s.recv.Cap() {
			return fmt.Errorf("%w: id %d declares %d payload bytes, window holds %d",
				protocol.ErrFrameTooLarge, h.ID, h.Length, s.recv.Cap()-protocol.HeaderSize)
		}
		if end < size {
			return nil
		}

		s.recv.Seek(protocol.HeaderSize)
		payload, err := s.recv.ReadBytes(int(h.Length))
		if err != nil {
			return err
		}
		s.recv.Purge()
		s.recv.Seek(end - size)

		s.obs.FrameReceived(h.ID, int(h.Length))
		s.deliver(protocol.NewPayloadPacket(int(h.ID), payload))

		if s.ctx.Err() != nil {
			return nil
		}
	}
	return nil
}
