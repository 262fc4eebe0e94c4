package transport

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/pion/webrtc/v4"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	maxMessageSize = 16 * 1024  // largest DataChannel message a Write produces
	inboxSize      = 64         // queued inbound messages before OnMessage blocks
)

// rtcAddr labels the ends of a DataChannel by their signaling endpoint.
type rtcAddr string

func (a rtcAddr) Network() string { return "webrtc" }
func (a rtcAddr) String() string  { return string(a) }

// dcConn presents a DataChannel as a byte stream. Inbound messages are
// queued and read across message boundaries; writes are split into
// messages of at most maxMessageSize with bufferedAmount backpressure.
type dcConn struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	inbox    chan []byte
	leftover []byte

	sendReady chan struct{}
	closed    chan struct{}
	closeOnce sync.Once

	local, remote net.Addr
}

func newDCConn(pc *webrtc.PeerConnection, dc *webrtc.DataChannel, local, remote net.Addr) *dcConn {
	c := &dcConn{
		pc:        pc,
		dc:        dc,
		inbox:     make(chan []byte, inboxSize),
		sendReady: make(chan struct{}, 1),
		closed:    make(chan struct{}),
		local:     local,
		remote:    remote,
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case c.sendReady <- struct{}{}:
		default:
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			return
		}
		data := append([]byte(nil), msg.Data...)
		select {
		case c.inbox <- data:
		case <-c.closed:
		}
	})

	dc.OnClose(func() { c.shutdown() })

	return c
}

func (c *dcConn) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *dcConn) Read(p []byte) (int, error) {
	if len(c.leftover) == 0 {
		select {
		case b := <-c.inbox:
			c.leftover = b
		default:
			select {
			case b := <-c.inbox:
				c.leftover = b
			case <-c.closed:
				return 0, io.EOF
			}
		}
	}
	n := copy(p, c.leftover)
	c.leftover = c.leftover[n:]
	return n, nil
}

func (c *dcConn) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		for c.dc.BufferedAmount() > uint64(highWaterMark) {
			select {
			case <-c.sendReady:
			case <-c.closed:
				return written, io.ErrClosedPipe
			}
		}

		chunk := p
		if len(chunk) > maxMessageSize {
			chunk = chunk[:maxMessageSize]
		}
		if err := c.dc.Send(chunk); err != nil {
			return written, err
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

// Close shuts down the DataChannel and PeerConnection.
func (c *dcConn) Close() error {
	c.shutdown()
	return errors.Join(c.dc.Close(), c.pc.Close())
}

func (c *dcConn) LocalAddr() net.Addr  { return c.local }
func (c *dcConn) RemoteAddr() net.Addr { return c.remote }
