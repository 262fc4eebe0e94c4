package stream

import (
	"errors"
	"fmt"
	"io"

	"github.com/1ureka/framewire/internal/protocol"
)

const (
	stateIdle int32 = iota
	stateSending
)

// Enqueue queues a packet for sending. The packet is finalized first. A
// frame that can never fit the send window is a terminal fault.
func (s *Stream) Enqueue(pkt *protocol.Packet) error {
	if err := s.closedErr(); err != nil {
		return err
	}

	pkt.Finalize()
	h, err := protocol.FrameHeader(pkt)
	if err != nil {
		if errors.Is(err, protocol.ErrPacketTooLarge) {
			s.fail(err)
		}
		return err
	}
	if h.FrameSize() > s.opts.SendWindow {
		err := fmt.Errorf("%w: id %d needs %d bytes, send window is %d",
			protocol.ErrPacketTooLarge, h.ID, h.FrameSize(), s.opts.SendWindow)
		s.fail(err)
		return err
	}

	switch s.opts.Overflow {
	case OverflowDrop:
		select {
		case s.outbound <- pkt:
		default:
			s.obs.PacketDropped(pkt.ID(), DropQueueFull)
			return nil
		}
	case OverflowReject:
		select {
		case s.outbound <- pkt:
		default:
			return fmt.Errorf("%w: packet %d", ErrQueueFull, pkt.ID())
		}
	default:
		select {
		case s.outbound <- pkt:
		case <-s.ctx.Done():
			return s.closedErr()
		}
	}

	s.pump()
	return nil
}

// pump wakes the send goroutine unless it is already flushing.
func (s *Stream) pump() {
	if !s.state.CompareAndSwap(stateIdle, stateSending) {
		return
	}
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Stream) sendLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.kick:
		case <-s.ctx.Done():
			return
		}
		if err := s.flush(); err != nil {
			s.fail(err)
			return
		}
	}
}

// flush stages and writes until nothing is left to send, then hands the
// state token back. Work that raced in after the last check is picked up
// by taking the token again.
func (s *Stream) flush() error {
	for {
		if s.ctx.Err() != nil {
			return nil
		}

		staged, err := s.stage()
		if err != nil {
			return err
		}
		if staged > 0 {
			if err := s.writeStaged(); err != nil {
				return err
			}
			continue
		}

		s.state.Store(stateIdle)
		if len(s.outbound) == 0 && s.pending == nil {
			return nil
		}
		if !s.state.CompareAndSwap(stateIdle, stateSending) {
			// Someone else took the token and kicked us.
			return nil
		}
	}
}

// stage copies queued frames into the send window in FIFO order until the
// queue is empty or the next frame does not fit. It returns the number of
// bytes waiting in the window.
func (s *Stream) stage() (int, error) {
	for {
		pkt := s.pending
		s.pending = nil
		if pkt == nil {
			select {
			case pkt = <-s.outbound:
			default:
				return s.send.Offset(), nil
			}
		}

		h, err := protocol.FrameHeader(pkt)
		if err != nil {
			return 0, err
		}
		if h.FrameSize() > s.send.Remaining() {
			if s.send.Offset() == 0 {
				return 0, fmt.Errorf("%w: id %d needs %d bytes, send window is %d",
					protocol.ErrPacketTooLarge, h.ID, h.FrameSize(), s.send.Cap())
			}
			s.pending = pkt
			return s.send.Offset(), nil
		}

		var hdr [protocol.HeaderSize]byte
		protocol.PutHeader(hdr[:], h)
		if err := s.send.WriteBytes(hdr[:]); err != nil {
			return 0, err
		}
		if err := s.send.WriteBytes(pkt.Bytes()); err != nil {
			return 0, err
		}
		s.obs.FrameSent(h.ID, int(h.Length))
	}
}

// writeStaged writes the staged bytes once and drops exactly the bytes the
// transport accepted from the front of the window.
func (s *Stream) writeStaged() error {
	end := s.send.Offset()
	n, err := s.conn.Write(s.send.Bytes()[:end])
	if n > 0 {
		s.obs.BytesWritten(n)
		s.send.Seek(n)
		s.send.Purge()
		s.send.Seek(end - n)
	}
	if err != nil {
		if s.ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: write: %w", ErrTransport, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: write: %w", ErrTransport, io.ErrShortWrite)
	}
	return nil
}
