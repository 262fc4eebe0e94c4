package stream_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1ureka/framewire/internal/dispatch"
	"github.com/1ureka/framewire/internal/protocol"
	"github.com/1ureka/framewire/internal/stream"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// chunkConn hands out scripted read chunks and records writes. Reads block
// until the test pushes a chunk; closing chunks yields io.EOF.
type chunkConn struct {
	chunks    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	leftover []byte

	mu        sync.Mutex
	written   bytes.Buffer
	writes    int
	maxWrite  int           // 0 = accept everything
	writeGate chan struct{} // nil = never block
	closeErr  error         // returned by Close
}

func newChunkConn() *chunkConn {
	return &chunkConn{
		chunks: make(chan []byte),
		closed: make(chan struct{}),
	}
}

func (c *chunkConn) Read(p []byte) (int, error) {
	if len(c.leftover) == 0 {
		select {
		case b, ok := <-c.chunks:
			if !ok {
				return 0, io.EOF
			}
			c.leftover = b
		case <-c.closed:
			return 0, io.ErrClosedPipe
		}
	}
	n := copy(p, c.leftover)
	c.leftover = c.leftover[n:]
	return n, nil
}

func (c *chunkConn) Write(p []byte) (int, error) {
	if c.writeGate != nil {
		select {
		case <-c.writeGate:
		case <-c.closed:
			return 0, io.ErrClosedPipe
		}
	}
	select {
	case <-c.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	n := len(p)
	if c.maxWrite > 0 && n > c.maxWrite {
		n = c.maxWrite
	}
	c.mu.Lock()
	c.written.Write(p[:n])
	c.writes++
	c.mu.Unlock()
	return n, nil
}

func (c *chunkConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.closeErr
}

func (c *chunkConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *chunkConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// countingObserver tallies observer events.
type countingObserver struct {
	stream.NopObserver
	received atomic.Int64
	sent     atomic.Int64
	dropped  atomic.Int64
	closed   atomic.Int64
}

func (o *countingObserver) FrameReceived(uint8, int)  { o.received.Add(1) }
func (o *countingObserver) FrameSent(uint8, int)      { o.sent.Add(1) }
func (o *countingObserver) PacketDropped(int, string) { o.dropped.Add(1) }
func (o *countingObserver) StreamClosed(error)        { o.closed.Add(1) }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func frame(id byte, payload ...byte) []byte {
	out := []byte{id, byte(len(payload) >> 8), byte(len(payload))}
	return append(out, payload...)
}

func dwordFrame(id byte, v uint32) []byte {
	return frame(id, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// recorder is a reader whose handler for id 1 pushes the DWord payload.
func recorder(t *testing.T) (*dispatch.Reader, chan uint32) {
	t.Helper()
	got := make(chan uint32, 64)
	r := dispatch.NewReader()
	err := r.Handle(func(pkt *protocol.Packet, _ dispatch.Conn) error {
		v, err := pkt.ReadDWord()
		if err != nil {
			return err
		}
		got <- v
		return nil
	}, 1)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	return r, got
}

func dwordWriter(t *testing.T, ids ...uint8) *dispatch.Writer {
	t.Helper()
	w := dispatch.NewWriter()
	err := w.Create(func(pkt *protocol.Packet, params []any) error {
		return pkt.WriteDWord(params[0].(uint32))
	}, ids...)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return w
}

func expectValue(t *testing.T, got <-chan uint32, want uint32) {
	t.Helper()
	select {
	case v := <-got:
		if v != want {
			t.Fatalf("handled value: got %d, want %d", v, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for value %d", want)
	}
}

func expectNothing(t *testing.T, got <-chan uint32) {
	t.Helper()
	select {
	case v := <-got:
		t.Fatalf("unexpected dispatch of %d", v)
	default:
	}
}

// ---------------------------------------------------------------------------
// Receive path
// ---------------------------------------------------------------------------

// TestReceiveSplitFrame feeds one frame a byte at a time and checks it is
// dispatched only after the last byte.
func TestReceiveSplitFrame(t *testing.T) {
	conn := newChunkConn()
	reader, got := recorder(t)
	s := stream.New(context.Background(), conn, reader, nil, stream.Options{})
	defer s.Close()

	data := dwordFrame(1, 0xCAFEBABE)
	for i, b := range data {
		conn.chunks <- []byte{b}
		if i < len(data)-1 {
			// The unbuffered send above only returns once the previous
			// chunk has been parsed.
			expectNothing(t, got)
		}
	}
	expectValue(t, got, 0xCAFEBABE)
}

// TestReceiveConcatenated splits two back-to-back frames at every possible
// boundary and checks both arrive once, in order.
func TestReceiveConcatenated(t *testing.T) {
	data := append(dwordFrame(1, 10), dwordFrame(1, 20)...)

	for split := 0; split <= len(data); split++ {
		conn := newChunkConn()
		reader, got := recorder(t)
		s := stream.New(context.Background(), conn, reader, nil, stream.Options{})

		if split > 0 {
			conn.chunks <- data[:split]
		}
		if split < len(data) {
			conn.chunks <- data[split:]
		}
		expectValue(t, got, 10)
		expectValue(t, got, 20)
		s.Close()
		expectNothing(t, got)
	}
}

// TestReceiveManyFramesOneRead delivers several frames in a single chunk.
func TestReceiveManyFramesOneRead(t *testing.T) {
	conn := newChunkConn()
	reader, got := recorder(t)
	s := stream.New(context.Background(), conn, reader, nil, stream.Options{})
	defer s.Close()

	var data []byte
	for i := uint32(0); i < 20; i++ {
		data = append(data, dwordFrame(1, i)...)
	}
	conn.chunks <- data
	for i := uint32(0); i < 20; i++ {
		expectValue(t, got, i)
	}
}

// TestReceiveUnhandledDropped checks that an unknown id is dropped without
// disturbing the frames behind it.
func TestReceiveUnhandledDropped(t *testing.T) {
	conn := newChunkConn()
	reader, got := recorder(t)
	obs := &countingObserver{}
	s := stream.New(context.Background(), conn, reader, nil, stream.Options{Observer: obs})
	defer s.Close()

	data := append(frame(0x42, 1, 2, 3), dwordFrame(1, 7)...)
	conn.chunks <- data

	expectValue(t, got, 7)
	if obs.dropped.Load() != 1 {
		t.Fatalf("dropped: got %d, want 1", obs.dropped.Load())
	}
	if obs.received.Load() != 2 {
		t.Fatalf("received: got %d, want 2", obs.received.Load())
	}
	if s.Err() != nil {
		t.Fatalf("stream failed: %v", s.Err())
	}
}

// TestReceiveHandlerErrorNotFatal keeps the stream alive after a handler
// error or panic.
func TestReceiveHandlerErrorNotFatal(t *testing.T) {
	conn := newChunkConn()
	reader, got := recorder(t)
	reader.Handle(func(*protocol.Packet, dispatch.Conn) error { return errors.New("nope") }, 2)
	reader.Handle(func(*protocol.Packet, dispatch.Conn) error { panic("boom") }, 3)
	s := stream.New(context.Background(), conn, reader, nil, stream.Options{})
	defer s.Close()

	conn.chunks <- frame(2)
	conn.chunks <- frame(3)
	conn.chunks <- dwordFrame(1, 99)
	expectValue(t, got, 99)
	if s.Err() != nil {
		t.Fatalf("stream failed: %v", s.Err())
	}
}

// TestReceiveFrameTooLarge checks a header larger than the window is fatal.
func TestReceiveFrameTooLarge(t *testing.T) {
	conn := newChunkConn()
	reader, got := recorder(t)
	s := stream.New(context.Background(), conn, reader, dwordWriter(t, 1), stream.Options{ReceiveWindow: 16})

	conn.chunks <- []byte{1, 0x00, 0x20}

	if err := s.Wait(); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Fatalf("Err: got %v, want ErrFrameTooLarge", err)
	}
	if !conn.isClosed() {
		t.Fatal("transport not closed after fatal frame")
	}
	if err := s.Write(1, uint32(1)); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("Write after fault: got %v, want ErrClosed", err)
	}
	expectNothing(t, got)
}

// TestReceiveFrameFillsWindow accepts a frame exactly as large as the window.
func TestReceiveFrameFillsWindow(t *testing.T) {
	conn := newChunkConn()
	var size atomic.Int64
	reader := dispatch.NewReader()
	reader.Handle(func(pkt *protocol.Packet, _ dispatch.Conn) error {
		size.Store(int64(pkt.Cap()))
		return nil
	}, 5)
	s := stream.New(context.Background(), conn, reader, nil, stream.Options{ReceiveWindow: 16})
	defer s.Close()

	conn.chunks <- frame(5, make([]byte, 13)...)
	waitFor(t, "full-window frame", func() bool { return size.Load() == 13 })
}

// TestReceiveEOF turns a peer close into a transport fault.
func TestReceiveEOF(t *testing.T) {
	conn := newChunkConn()
	s := stream.New(context.Background(), conn, nil, nil, stream.Options{})

	close(conn.chunks)
	if err := s.Wait(); !errors.Is(err, stream.ErrTransport) {
		t.Fatalf("Err: got %v, want ErrTransport", err)
	}
}

// TestQueuedDispatch parks packets until Drain runs them on the caller.
func TestQueuedDispatch(t *testing.T) {
	conn := newChunkConn()
	reader, got := recorder(t)
	s := stream.New(context.Background(), conn, reader, nil, stream.Options{Dispatch: stream.DispatchQueued})
	defer s.Close()

	conn.chunks <- append(dwordFrame(1, 1), dwordFrame(1, 2)...)
	waitFor(t, "two queued packets", func() bool { return s.Pending() == 2 })
	expectNothing(t, got)

	if n := s.Drain(); n != 2 {
		t.Fatalf("Drain: got %d, want 2", n)
	}
	expectValue(t, got, 1)
	expectValue(t, got, 2)
	if n := s.Drain(); n != 0 {
		t.Fatalf("second Drain: got %d, want 0", n)
	}
}

// TestQueuedBackpressure fills the inbound queue and checks that the
// receive loop stops reading until Drain makes room.
func TestQueuedBackpressure(t *testing.T) {
	testCases := []struct {
		name  string
		queue int
	}{
		{"queue of one", 1},
		{"queue of three", 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := newChunkConn()
			reader, got := recorder(t)
			obs := &countingObserver{}
			s := stream.New(context.Background(), conn, reader, nil, stream.Options{
				Dispatch:     stream.DispatchQueued,
				InboundQueue: tc.queue,
				Observer:     obs,
			})
			defer s.Close()

			// One frame more than the queue holds, plus one left unparsed.
			total := tc.queue + 2
			var chunk []byte
			for i := 1; i <= total; i++ {
				chunk = append(chunk, dwordFrame(1, uint32(i))...)
			}
			conn.chunks <- chunk

			waitFor(t, "a full inbound queue", func() bool { return s.Pending() == tc.queue })
			waitFor(t, "the blocked frame", func() bool { return obs.received.Load() == int64(tc.queue+1) })
			expectNothing(t, got)

			select {
			case conn.chunks <- dwordFrame(1, uint32(total+1)):
				t.Fatal("receive loop read more bytes while the inbound queue was full")
			case <-time.After(50 * time.Millisecond):
			}
			if n := obs.received.Load(); n != int64(tc.queue+1) {
				t.Fatalf("parsed %d frames while blocked, want %d", n, tc.queue+1)
			}

			drained := 0
			waitFor(t, "the backlog to drain", func() bool {
				drained += s.Drain()
				return drained == total
			})
			for i := 1; i <= total; i++ {
				expectValue(t, got, uint32(i))
			}

			select {
			case conn.chunks <- dwordFrame(1, uint32(total+1)):
			case <-time.After(3 * time.Second):
				t.Fatal("receive loop did not resume after Drain")
			}
			waitFor(t, "the next frame", func() bool {
				drained += s.Drain()
				return drained == total+1
			})
			expectValue(t, got, uint32(total+1))
			if s.Err() != nil {
				t.Fatalf("stream failed: %v", s.Err())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Send path
// ---------------------------------------------------------------------------

// readFrames reads count frames from r and returns their DWord payloads.
func readFrames(t *testing.T, r io.Reader, count int) []uint32 {
	t.Helper()
	var out []uint32
	for i := 0; i < count; i++ {
		hdr := make([]byte, protocol.HeaderSize)
		if _, err := io.ReadFull(r, hdr); err != nil {
			t.Fatalf("read header %d: %v", i, err)
		}
		h, _ := protocol.ParseHeader(hdr)
		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			t.Fatalf("read payload %d: %v", i, err)
		}
		v, err := protocol.NewPayloadPacket(int(h.ID), payload).ReadDWord()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		out = append(out, v)
	}
	return out
}

// TestSendFIFO checks that A, B, C go out as A, B, C.
func TestSendFIFO(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := stream.New(context.Background(), local, nil, dwordWriter(t, 1), stream.Options{})
	defer s.Close()

	for _, v := range []uint32{0xA, 0xB, 0xC} {
		if err := s.Write(1, v); err != nil {
			t.Fatalf("Write(%d): %v", v, err)
		}
	}

	got := readFrames(t, remote, 3)
	want := []uint32{0xA, 0xB, 0xC}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", got, want)
		}
	}
}

// TestSendConcurrentProducers checks per-producer order and that nothing is
// lost or duplicated when many goroutines write at once.
func TestSendConcurrentProducers(t *testing.T) {
	const producers, perProducer = 4, 50

	local, remote := net.Pipe()
	defer remote.Close()
	s := stream.New(context.Background(), local, nil, dwordWriter(t, 1), stream.Options{})
	defer s.Close()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p uint32) {
			defer wg.Done()
			for i := uint32(0); i < perProducer; i++ {
				if err := s.Write(1, p<<16|i); err != nil {
					t.Errorf("producer %d: %v", p, err)
					return
				}
			}
		}(uint32(p))
	}

	got := readFrames(t, remote, producers*perProducer)
	wg.Wait()

	next := make(map[uint32]uint32)
	for _, v := range got {
		p, i := v>>16, v&0xFFFF
		if i != next[p] {
			t.Fatalf("producer %d: got seq %d, want %d", p, i, next[p])
		}
		next[p]++
	}
	for p := uint32(0); p < producers; p++ {
		if next[p] != perProducer {
			t.Fatalf("producer %d: got %d frames, want %d", p, next[p], perProducer)
		}
	}
}

// TestSendPartialWrites uses a transport that accepts two bytes per call.
func TestSendPartialWrites(t *testing.T) {
	conn := newChunkConn()
	conn.maxWrite = 2
	s := stream.New(context.Background(), conn, nil, dwordWriter(t, 1, 2), stream.Options{})
	defer s.Close()

	s.Write(1, uint32(0x01020304))
	s.Write(2, uint32(0x05060708))

	want := append(dwordFrame(1, 0x01020304), dwordFrame(2, 0x05060708)...)
	waitFor(t, "all bytes written", func() bool { return len(conn.Written()) == len(want) })
	if !bytes.Equal(conn.Written(), want) {
		t.Fatalf("wire bytes: got %x, want %x", conn.Written(), want)
	}
}

// TestSendCoalesces checks that frames queued behind a blocked write are
// staged together.
func TestSendCoalesces(t *testing.T) {
	conn := newChunkConn()
	conn.writeGate = make(chan struct{})
	obs := &countingObserver{}
	s := stream.New(context.Background(), conn, nil, dwordWriter(t, 1), stream.Options{Observer: obs})
	defer s.Close()

	for i := uint32(0); i < 10; i++ {
		if err := s.Write(1, i); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	close(conn.writeGate)

	waitFor(t, "all frames written", func() bool { return len(conn.Written()) == 10*7 })
	conn.mu.Lock()
	writes := conn.writes
	conn.mu.Unlock()
	if writes >= 10 {
		t.Fatalf("expected coalesced writes, got %d writes for 10 frames", writes)
	}
	if obs.sent.Load() != 10 {
		t.Fatalf("FrameSent: got %d, want 10", obs.sent.Load())
	}
}

// TestUnknownPacketID leaves the stream usable.
func TestUnknownPacketID(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	s := stream.New(context.Background(), local, nil, dwordWriter(t, 1), stream.Options{})
	defer s.Close()

	if err := s.Write(77); !errors.Is(err, protocol.ErrUnknownPacketID) {
		t.Fatalf("got %v, want ErrUnknownPacketID", err)
	}
	if err := s.Write(1, uint32(5)); err != nil {
		t.Fatalf("Write after unknown id: %v", err)
	}
	if got := readFrames(t, remote, 1); got[0] != 5 {
		t.Fatalf("got %v, want [5]", got)
	}
	if s.Err() != nil {
		t.Fatalf("stream failed: %v", s.Err())
	}
}

// TestPacketTooLarge is fatal for the stream.
func TestPacketTooLarge(t *testing.T) {
	conn := newChunkConn()
	w := dispatch.NewWriter()
	w.Create(func(pkt *protocol.Packet, _ []any) error {
		return pkt.WriteBytes(make([]byte, 10))
	}, 9)
	s := stream.New(context.Background(), conn, nil, w, stream.Options{SendWindow: 8})

	if err := s.Write(9); !errors.Is(err, protocol.ErrPacketTooLarge) {
		t.Fatalf("Write: got %v, want ErrPacketTooLarge", err)
	}
	if err := s.Wait(); !errors.Is(err, protocol.ErrPacketTooLarge) {
		t.Fatalf("Err: got %v, want ErrPacketTooLarge", err)
	}
}

// TestOverflowPolicies fills a small queue behind a blocked write.
func TestOverflowPolicies(t *testing.T) {
	testCases := []struct {
		name     string
		overflow stream.Overflow
	}{
		{"reject", stream.OverflowReject},
		{"drop", stream.OverflowDrop},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := newChunkConn()
			conn.writeGate = make(chan struct{})
			obs := &countingObserver{}
			s := stream.New(context.Background(), conn, nil, dwordWriter(t, 1), stream.Options{
				SendWindow:    8,
				OutboundQueue: 1,
				Overflow:      tc.overflow,
				Observer:      obs,
			})
			defer s.Close()

			// Window, pending slot and queue hold at most three frames
			// while the first write is blocked.
			accepted, rejected := 0, 0
			for i := uint32(0); i < 10; i++ {
				err := s.Write(1, i)
				switch {
				case err == nil:
					accepted++
				case errors.Is(err, stream.ErrQueueFull):
					rejected++
				default:
					t.Fatalf("Write: %v", err)
				}
			}

			switch tc.overflow {
			case stream.OverflowReject:
				if rejected < 7 {
					t.Fatalf("rejected %d of 10, want at least 7", rejected)
				}
			case stream.OverflowDrop:
				if rejected != 0 {
					t.Fatalf("drop policy returned ErrQueueFull %d times", rejected)
				}
				if obs.dropped.Load() < 7 {
					t.Fatalf("dropped %d of 10, want at least 7", obs.dropped.Load())
				}
			}

			close(conn.writeGate)
			if s.Err() != nil {
				t.Fatalf("stream failed: %v", s.Err())
			}
		})
	}
}

// TestOverflowBlock checks that the default policy parks Enqueue until the
// queue has room, and releases it with ErrClosed when the stream dies.
func TestOverflowBlock(t *testing.T) {
	testCases := []struct {
		name    string
		release func(s *stream.Stream, conn *chunkConn)
		wantErr error
	}{
		{"room frees up", func(_ *stream.Stream, conn *chunkConn) { close(conn.writeGate) }, nil},
		{"stream closes", func(s *stream.Stream, _ *chunkConn) { s.Close() }, stream.ErrClosed},
	}

	const writes = 10
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := newChunkConn()
			conn.writeGate = make(chan struct{})
			s := stream.New(context.Background(), conn, nil, dwordWriter(t, 1), stream.Options{
				SendWindow:    8,
				OutboundQueue: 1,
			})
			defer s.Close()

			var accepted atomic.Int64
			done := make(chan error, 1)
			go func() {
				for i := uint32(0); i < writes; i++ {
					if err := s.Write(1, i); err != nil {
						done <- err
						return
					}
					accepted.Add(1)
				}
				done <- nil
			}()

			// Window, pending slot and queue hold at most three frames
			// while the first write is blocked.
			select {
			case err := <-done:
				t.Fatalf("writer finished with %v while the transport was blocked", err)
			case <-time.After(50 * time.Millisecond):
			}
			if n := accepted.Load(); n >= writes {
				t.Fatalf("accepted %d writes behind a blocked transport", n)
			}

			tc.release(s, conn)

			select {
			case err := <-done:
				if tc.wantErr == nil {
					if err != nil {
						t.Fatalf("Write: %v", err)
					}
				} else if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Write: got %v, want %v", err, tc.wantErr)
				}
			case <-time.After(3 * time.Second):
				t.Fatal("blocked Write was never released")
			}

			if tc.wantErr == nil {
				waitFor(t, "every frame", func() bool { return len(conn.Written()) == writes*7 })
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// TestClose marks the stream closed and rejects later writes.
func TestClose(t *testing.T) {
	conn := newChunkConn()
	obs := &countingObserver{}
	s := stream.New(context.Background(), conn, nil, dwordWriter(t, 1), stream.Options{Observer: obs})

	s.Close()
	s.Close()
	if err := s.Wait(); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("Err: got %v, want ErrClosed", err)
	}
	if !conn.isClosed() {
		t.Fatal("transport not closed")
	}
	if err := s.Enqueue(protocol.NewPacket(1)); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("Enqueue after close: got %v, want ErrClosed", err)
	}
	if obs.closed.Load() != 1 {
		t.Fatalf("StreamClosed called %d times, want 1", obs.closed.Load())
	}
}

// TestCloseReportsTransportError returns the close error once.
func TestCloseReportsTransportError(t *testing.T) {
	closeErr := errors.New("close failed")
	conn := newChunkConn()
	conn.closeErr = closeErr
	s := stream.New(context.Background(), conn, nil, nil, stream.Options{})

	if err := s.Close(); !errors.Is(err, closeErr) {
		t.Fatalf("first Close: got %v, want %v", err, closeErr)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: got %v, want nil", err)
	}
	if err := s.Wait(); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("Err: got %v, want ErrClosed", err)
	}
}

// TestParentCancel tears the stream down with the parent context.
func TestParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conn := newChunkConn()
	s := stream.New(ctx, conn, nil, nil, stream.Options{})

	cancel()
	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop after parent cancel")
	}
	if err := s.Wait(); !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("Err: got %v, want ErrClosed", err)
	}
}

// TestNewSealsRegistries rejects late registration.
func TestNewSealsRegistries(t *testing.T) {
	reader := dispatch.NewReader()
	writer := dispatch.NewWriter()
	s := stream.New(context.Background(), newChunkConn(), reader, writer, stream.Options{})
	defer s.Close()

	if !reader.Sealed() || !writer.Sealed() {
		t.Fatal("registries not sealed by New")
	}
	err := reader.Handle(func(*protocol.Packet, dispatch.Conn) error { return nil }, 1)
	if !errors.Is(err, dispatch.ErrSealed) {
		t.Fatalf("late Handle: got %v, want ErrSealed", err)
	}
}

// TestAttachment stores an owner value.
func TestAttachment(t *testing.T) {
	s := stream.New(context.Background(), newChunkConn(), nil, nil, stream.Options{})
	defer s.Close()

	if s.Attachment() != nil {
		t.Fatal("fresh stream has an attachment")
	}
	s.SetAttachment("alice")
	if got := s.Attachment(); got != "alice" {
		t.Fatalf("Attachment: got %v, want alice", got)
	}
}

// TestOptionsValidate covers window and enum limits.
func TestOptionsValidate(t *testing.T) {
	testCases := []struct {
		name    string
		opts    stream.Options
		wantErr bool
	}{
		{"zero value", stream.Options{}, false},
		{"header sized windows", stream.Options{ReceiveWindow: 3, SendWindow: 3}, false},
		{"receive too small", stream.Options{ReceiveWindow: 2}, true},
		{"send too large", stream.Options{SendWindow: protocol.MaxFrameSize + 1}, true},
		{"bad overflow", stream.Options{Overflow: stream.Overflow(9)}, true},
		{"bad dispatch", stream.Options{Dispatch: stream.DispatchMode(-1)}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate: got %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

// TestParsePolicies maps config strings.
func TestParsePolicies(t *testing.T) {
	if o, err := stream.ParseOverflow("Drop"); err != nil || o != stream.OverflowDrop {
		t.Fatalf("ParseOverflow(Drop): %v, %v", o, err)
	}
	if _, err := stream.ParseOverflow("explode"); err == nil {
		t.Fatal("ParseOverflow accepted an unknown policy")
	}
	if m, err := stream.ParseDispatchMode("queued"); err != nil || m != stream.DispatchQueued {
		t.Fatalf("ParseDispatchMode(queued): %v, %v", m, err)
	}
	if m, err := stream.ParseDispatchMode(""); err != nil || m != stream.DispatchImmediate {
		t.Fatalf("ParseDispatchMode(empty): %v, %v", m, err)
	}
}
