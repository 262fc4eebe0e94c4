package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/1ureka/framewire/internal/util"
)

// DialTCP connects to a TCP address.
func DialTCP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial tcp %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return conn, nil
}

// ListenTCP listens for TCP connections on addr.
func ListenTCP(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on tcp %s: %w", addr, err)
	}

	l := newChanListener(ln.Addr(), ln.Close)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if !l.closed() && !errors.Is(err, net.ErrClosed) {
					util.LogError("tcp accept: %v", err)
				}
				l.Close()
				return
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			if !l.push(conn) {
				return
			}
		}
	}()
	return l, nil
}
