package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/1ureka/framewire/internal/util"
)

// DefaultWebSocketPath is where ListenWebSocket upgrades connections.
const DefaultWebSocketPath = "/ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn reads consecutive binary messages as one byte stream and writes
// each Write call as one binary message.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
	wmu    sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			mt, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close frame on a best-effort basis and closes the socket.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// webSocketURL accepts either a full ws:// URL or a bare host:port.
func webSocketURL(addr, path string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "ws://" + addr + path
}

// DialWebSocket connects to a WebSocket endpoint.
func DialWebSocket(ctx context.Context, addr string) (Conn, error) {
	url := webSocketURL(addr, DefaultWebSocketPath)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return newWSConn(ws), nil
}

// ListenWebSocket serves WebSocket upgrades at path on addr.
func ListenWebSocket(addr, path string) (Listener, error) {
	l := newChanListener(nil, nil)
	r := chi.NewRouter()
	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			util.LogDebug("ws upgrade from %s: %v", req.RemoteAddr, err)
			return
		}
		l.push(newWSConn(ws))
	})

	ln, srv, err := serveHTTP(addr, r)
	if err != nil {
		return nil, err
	}
	l.addr = ln.Addr()
	l.closeFn = srv.Close
	return l, nil
}

// serveHTTP starts an HTTP server for h on addr in the background.
func serveHTTP(addr string, h http.Handler) (net.Listener, *http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start HTTP server on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("http server on %s: %v", addr, err)
		}
	}()
	return ln, srv, nil
}
