// Package transport provides the byte-stream connections a framewire stream
// runs over: TCP, WebSocket, QUIC and WebRTC DataChannels. Every kind yields
// a Conn and can be listened on through the same Listener interface.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// Kind names a transport.
type Kind string

const (
	KindTCP       Kind = "tcp"
	KindWebSocket Kind = "ws"
	KindQUIC      Kind = "quic"
	KindWebRTC    Kind = "webrtc"
)

// Kinds lists every supported transport.
var Kinds = []Kind{KindTCP, KindWebSocket, KindQUIC, KindWebRTC}

var ErrListenerClosed = errors.New("transport: listener closed")

// ParseKind maps a flag or config value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return KindTCP, nil
	case "ws", "websocket":
		return KindWebSocket, nil
	case "quic":
		return KindQUIC, nil
	case "webrtc", "rtc":
		return KindWebRTC, nil
	}
	return "", fmt.Errorf("unknown transport %q (want one of %v)", s, Kinds)
}

// Conn is a connected, reliable, ordered byte stream.
type Conn interface {
	io.ReadWriteCloser
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener accepts inbound Conns.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Addr() net.Addr
	Close() error
}

// Listen opens a listener of the given kind with default options.
func Listen(kind Kind, addr string) (Listener, error) {
	switch kind {
	case KindTCP:
		return ListenTCP(addr)
	case KindWebSocket:
		return ListenWebSocket(addr, DefaultWebSocketPath)
	case KindQUIC:
		return ListenQUIC(addr)
	case KindWebRTC:
		return ListenWebRTC(addr, DefaultWebRTCOptions())
	}
	return nil, fmt.Errorf("transport: cannot listen on %q", kind)
}

// Dial connects to addr with the given kind and default options.
func Dial(ctx context.Context, kind Kind, addr string) (Conn, error) {
	switch kind {
	case KindTCP:
		return DialTCP(ctx, addr)
	case KindWebSocket:
		return DialWebSocket(ctx, addr)
	case KindQUIC:
		return DialQUIC(ctx, addr)
	case KindWebRTC:
		return DialWebRTC(ctx, addr, DefaultWebRTCOptions())
	}
	return nil, fmt.Errorf("transport: cannot dial %q", kind)
}

// ---------------------------------------------------------------------------
// Channel-backed listener
// ---------------------------------------------------------------------------

// chanListener hands out conns produced by a background accept loop.
type chanListener struct {
	addr      net.Addr
	conns     chan Conn
	done      chan struct{}
	closeOnce sync.Once
	closeFn   func() error
}

func newChanListener(addr net.Addr, closeFn func() error) *chanListener {
	return &chanListener{
		addr:    addr,
		conns:   make(chan Conn),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

// push offers c to Accept, closing it instead once the listener is closed.
func (l *chanListener) push(c Conn) bool {
	select {
	case l.conns <- c:
		return true
	case <-l.done:
		c.Close()
		return false
	}
}

func (l *chanListener) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *chanListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.done:
		return nil, ErrListenerClosed
	}
}

func (l *chanListener) Addr() net.Addr { return l.addr }

func (l *chanListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		if l.closeFn != nil {
			err = l.closeFn()
		}
	})
	return err
}
