package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/framewire/internal/util"
)

// DefaultSignalPath is where ListenWebRTC accepts signaling WebSockets.
const DefaultSignalPath = "/signal"

const (
	establishTimeout = 30 * time.Second // bounds one signaling exchange
	openGrace        = 5 * time.Second  // wait for OnOpen after signaling ends
)

// ListenWebRTC serves signaling at DefaultSignalPath on addr. Every
// signaling client gets its own PeerConnection; the listener side offers
// and creates the DataChannel.
func ListenWebRTC(addr string, opts WebRTCOptions) (Listener, error) {
	ctx, cancel := context.WithCancel(context.Background())
	l := newChanListener(nil, nil)

	r := chi.NewRouter()
	r.Get(DefaultSignalPath, func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			util.LogDebug("signal upgrade from %s: %v", req.RemoteAddr, err)
			return
		}
		defer ws.Close()

		ectx, ecancel := context.WithTimeout(ctx, establishTimeout)
		defer ecancel()
		conn, err := establish(ectx, ws, opts, true)
		if err != nil {
			util.LogWarning("webrtc signaling with %s failed: %v", req.RemoteAddr, err)
			return
		}
		l.push(conn)
	})

	ln, srv, err := serveHTTP(addr, r)
	if err != nil {
		cancel()
		return nil, err
	}
	l.addr = ln.Addr()
	l.closeFn = func() error {
		cancel()
		return srv.Close()
	}
	return l, nil
}

// DialWebRTC signals through the WebSocket at addr (a ws:// URL or a bare
// host:port) and returns once the DataChannel is open.
func DialWebRTC(ctx context.Context, addr string, opts WebRTCOptions) (Conn, error) {
	url := webSocketURL(addr, DefaultSignalPath)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	defer ws.Close()
	util.LogDebug("signaling connected: %s", url)

	ectx, cancel := context.WithTimeout(ctx, establishTimeout)
	defer cancel()
	return establish(ectx, ws, opts, false)
}

// establish runs one SDP/ICE exchange over ws and returns the open
// DataChannel as a Conn. The offerer creates the channel.
func establish(ctx context.Context, ws *websocket.Conn, opts WebRTCOptions, offerer bool) (*dcConn, error) {
	pc, err := newPeerConnection(opts)
	if err != nil {
		return nil, fmt.Errorf("create PeerConnection: %w", err)
	}

	local := rtcAddr("webrtc:" + ws.LocalAddr().String())
	remote := rtcAddr("webrtc:" + ws.RemoteAddr().String())

	opened := make(chan *dcConn, 1)
	watchOpen := func(dc *webrtc.DataChannel) {
		c := newDCConn(pc, dc, local, remote)
		dc.OnOpen(func() {
			select {
			case opened <- c:
			default:
			}
		})
	}

	if offerer {
		dc, err := newDataChannel(pc)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create DataChannel: %w", err)
		}
		watchOpen(dc)
	} else {
		pc.OnDataChannel(watchOpen)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection %s: %s", remote, state.String())
		if state == webrtc.PeerConnectionStateFailed {
			pc.Close()
		}
	})

	s := &signalSender{pc: pc, conn: ws}
	r := &signalReceiver{pc: pc, conn: ws, sender: s}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		// Best effort: the socket closes once the channel is open.
		if err := s.sendCandidate(c); err != nil {
			util.LogDebug("send ICE candidate: %v", err)
		}
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch() // exits when ws is closed by the caller
	}()

	if offerer {
		if err := s.sendOffer(); err != nil {
			pc.Close()
			return nil, fmt.Errorf("send offer: %w", err)
		}
	}

	select {
	case c := <-opened:
		util.LogDebug("DataChannel with %s open", remote)
		return c, nil
	case err := <-errCh:
		// The peer hangs up signaling as soon as its end of the channel is
		// open, which can beat our OnOpen by a few milliseconds.
		grace := time.NewTimer(openGrace)
		defer grace.Stop()
		select {
		case c := <-opened:
			return c, nil
		case <-grace.C:
		case <-ctx.Done():
		}
		pc.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}
}
