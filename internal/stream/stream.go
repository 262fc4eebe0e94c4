// Package stream turns a connected byte transport into a sequence of framed
// packets: a receive goroutine reassembles frames and hands them to a
// dispatch.Reader, and a send goroutine serializes queued packets in FIFO
// order.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/1ureka/framewire/internal/dispatch"
	"github.com/1ureka/framewire/internal/protocol"
	"github.com/1ureka/framewire/internal/util"
)

var (
	ErrClosed    = errors.New("stream: closed")
	ErrQueueFull = errors.New("stream: outbound queue full")
	ErrTransport = errors.New("stream: transport failure")
)

// Stream owns one transport connection. Its receive and send goroutines
// start in New and run until the transport fails, the parent context is
// cancelled, or Close is called. Whatever ends the stream first is kept as
// its terminal error.
type Stream struct {
	conn   io.ReadWriteCloser
	reader *dispatch.Reader
	writer *dispatch.Writer
	opts   Options
	obs    Observer

	// Touched only by the receive goroutine.
	recv *protocol.Packet

	// Touched only by the send goroutine.
	send    *protocol.Packet
	pending *protocol.Packet

	outbound chan *protocol.Packet
	inbound  chan *protocol.Packet
	kick     chan struct{}
	state    atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	failOnce sync.Once
	errMu    sync.RWMutex
	err      error

	attachMu   sync.RWMutex
	attachment any
}

// New seals reader and writer and starts the stream over conn. Invalid
// options fall back to the defaults field by field; call Options.Validate
// first to reject them instead.
func New(ctx context.Context, conn io.ReadWriteCloser, reader *dispatch.Reader, writer *dispatch.Writer, opts Options) *Stream {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		util.LogWarning("%s: %v, using default options", opts.Name, err)
		def := DefaultOptions()
		def.Name, def.Observer = opts.Name, opts.Observer
		opts = def
	}
	if reader == nil {
		reader = dispatch.NewReader()
	}
	if writer == nil {
		writer = dispatch.NewWriter()
	}
	reader.Seal()
	writer.Seal()

	sCtx, sCancel := context.WithCancel(ctx)

	s := &Stream{
		conn:     conn,
		reader:   reader,
		writer:   writer,
		opts:     opts,
		obs:      opts.Observer,
		recv:     protocol.NewWindow(opts.ReceiveWindow),
		send:     protocol.NewWindow(opts.SendWindow),
		outbound: make(chan *protocol.Packet, opts.OutboundQueue),
		kick:     make(chan struct{}, 1),
		ctx:      sCtx,
		cancel:   sCancel,
	}
	if opts.Dispatch == DispatchQueued {
		s.inbound = make(chan *protocol.Packet, opts.InboundQueue)
	}

	s.obs.StreamOpened()
	util.LogDebug("%s: opened (recv window %d, send window %d, dispatch %s, overflow %s)",
		opts.Name, opts.ReceiveWindow, opts.SendWindow, opts.Dispatch, opts.Overflow)

	s.wg.Add(3)
	go s.receiveLoop()
	go s.sendLoop()
	go s.watch()

	return s
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Name returns the label used in log lines.
func (s *Stream) Name() string { return s.opts.Name }

// Done is closed once the stream has stopped.
func (s *Stream) Done() <-chan struct{} { return s.ctx.Done() }

// Err returns the terminal error, or nil while the stream is running.
func (s *Stream) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.err
}

// Wait blocks until every stream goroutine has exited and returns the
// terminal error. It must not be called from a handler running in
// immediate dispatch mode.
func (s *Stream) Wait() error {
	s.wg.Wait()
	return s.Err()
}

// Close stops the stream and closes the transport. The terminal error
// becomes ErrClosed unless a fault happened first. Only the call that tears
// the stream down reports the transport's close error; later calls return
// nil.
func (s *Stream) Close() error {
	return s.fail(ErrClosed)
}

// Attachment returns the owner-defined value set with SetAttachment.
func (s *Stream) Attachment() any {
	s.attachMu.RLock()
	defer s.attachMu.RUnlock()
	return s.attachment
}

// SetAttachment stores an owner-defined value on the stream.
func (s *Stream) SetAttachment(v any) {
	s.attachMu.Lock()
	s.attachment = v
	s.attachMu.Unlock()
}

// watch turns parent cancellation into a terminal fault.
func (s *Stream) watch() {
	defer s.wg.Done()
	<-s.ctx.Done()
	s.fail(fmt.Errorf("%w: %v", ErrClosed, context.Cause(s.ctx)))
}

// fail records the first terminal error and tears the stream down. It
// returns the transport close error from the call that did the teardown.
func (s *Stream) fail(err error) (closeErr error) {
	s.failOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()

		s.cancel()
		closeErr = s.conn.Close()

		switch {
		case errors.Is(err, ErrClosed):
			util.LogDebug("%s: closed", s.opts.Name)
		default:
			util.LogError("%s: terminated: %v", s.opts.Name, err)
		}
		if closeErr != nil {
			util.LogDebug("%s: transport close: %v", s.opts.Name, closeErr)
		}
		s.obs.StreamClosed(err)
	})
	return closeErr
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// Write builds a packet with the creator bound to id and enqueues it.
func (s *Stream) Write(id uint8, params ...any) error {
	if err := s.closedErr(); err != nil {
		return err
	}
	return s.writer.Write(s, id, params...)
}

// Drain dispatches every packet currently waiting in the inbound queue on
// the calling goroutine and returns how many were handled. It returns 0 in
// immediate dispatch mode.
func (s *Stream) Drain() int {
	if s.inbound == nil {
		return 0
	}
	n := 0
	for {
		select {
		case pkt := <-s.inbound:
			s.dispatch(pkt)
			n++
		default:
			return n
		}
	}
}

// Pending returns the number of packets waiting in the inbound queue.
func (s *Stream) Pending() int { return len(s.inbound) }

func (s *Stream) deliver(pkt *protocol.Packet) {
	if s.inbound == nil {
		s.dispatch(pkt)
		return
	}
	select {
	case s.inbound <- pkt:
	case <-s.ctx.Done():
	}
}

func (s *Stream) dispatch(pkt *protocol.Packet) {
	err := s.reader.Dispatch(s.ctx, pkt, s)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrUnhandledPacketID):
		util.LogDebug("%s: dropped packet %d: no handler", s.opts.Name, pkt.ID())
		s.obs.PacketDropped(pkt.ID(), DropUnhandled)
	default:
		util.LogWarning("%s: handler for packet %d: %v", s.opts.Name, pkt.ID(), err)
	}
}

func (s *Stream) closedErr() error {
	if s.ctx.Err() == nil {
		return nil
	}
	if err := s.Err(); err != nil && !errors.Is(err, ErrClosed) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return ErrClosed
}
