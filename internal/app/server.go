package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/1ureka/framewire/internal/config"
	"github.com/1ureka/framewire/internal/dispatch"
	"github.com/1ureka/framewire/internal/metrics"
	"github.com/1ureka/framewire/internal/protocol"
	"github.com/1ureka/framewire/internal/stream"
	"github.com/1ureka/framewire/internal/transport"
	"github.com/1ureka/framewire/internal/util"
)

// peer is the attachment a server keeps on each stream. Only the stream's
// dispatch goroutine touches it.
type peer struct {
	name string
}

// Server accepts streams and runs the chat protocol on each of them.
type Server struct {
	cfg       config.Config
	opts      stream.Options
	reader    *dispatch.Reader
	writer    *dispatch.Writer
	hub       *Hub
	collector *metrics.Collector
	nextID    atomic.Uint32
}

// NewServer builds a server from cfg. A nil reg disables Prometheus
// collection.
func NewServer(cfg config.Config, reg prometheus.Registerer) (*Server, error) {
	opts, err := cfg.StreamOptions()
	if err != nil {
		return nil, err
	}
	if err := CheckWindows(opts); err != nil {
		return nil, err
	}
	writer, err := NewWriter()
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:    cfg,
		opts:   opts,
		reader: dispatch.NewReader(),
		writer: writer,
		hub:    NewHub(),
	}
	if reg != nil {
		srv.collector = metrics.New(reg)
	}

	if err := srv.reader.Handle(srv.handleHello, IDHello); err != nil {
		return nil, err
	}
	if err := srv.reader.Handle(srv.handlePing, IDPing); err != nil {
		return nil, err
	}
	if err := srv.reader.Handle(srv.handleMessage, IDMessage); err != nil {
		return nil, err
	}
	if err := srv.reader.Handle(srv.handleBlob, IDBlob); err != nil {
		return nil, err
	}
	return srv, nil
}

// Hub returns the table of live streams.
func (srv *Server) Hub() *Hub { return srv.hub }

// Serve accepts connections from l until ctx is cancelled or l fails.
func (srv *Server) Serve(ctx context.Context, l transport.Listener) error {
	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrListenerClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go func() {
			if err := srv.Handle(ctx, conn); err != nil {
				util.LogDebug("stream ended: %v", err)
			}
		}()
	}
}

// Handle runs one stream over conn and blocks until it ends.
func (srv *Server) Handle(ctx context.Context, conn transport.Conn) error {
	id := srv.nextID.Add(1)

	opts := srv.opts
	opts.Name = util.StreamName(string(srv.cfg.Transport), conn.LocalAddr(), conn.RemoteAddr())
	opts.Observer = srv.observer()

	s := stream.New(ctx, conn, srv.reader, srv.writer, opts)
	srv.hub.Register(id, s)
	defer srv.hub.Unregister(id)

	util.LogInfo("%s: connected", s.Name())
	if srv.opts.Dispatch == stream.DispatchQueued {
		drainLoop(s, srv.cfg.Stream.DrainInterval)
	}

	err := s.Wait()
	if errors.Is(err, stream.ErrClosed) {
		util.LogInfo("%s: disconnected", s.Name())
		return nil
	}
	return err
}

func (srv *Server) observer() stream.Observer {
	if srv.collector == nil {
		return util.Stats
	}
	return stream.Observers(util.Stats, srv.collector)
}

func (srv *Server) handleHello(pkt *protocol.Packet, c dispatch.Conn) error {
	name, err := pkt.ReadString()
	if err != nil {
		return err
	}
	if p := peerOf(c); p != nil {
		p.name = name
	}
	util.LogInfo("%q joined", name)
	return c.Write(IDHello, srv.cfg.Name)
}

func (srv *Server) handlePing(pkt *protocol.Packet, c dispatch.Conn) error {
	nonce, err := pkt.ReadLong()
	if err != nil {
		return err
	}
	return c.Write(IDPong, nonce)
}

func (srv *Server) handleMessage(pkt *protocol.Packet, c dispatch.Conn) error {
	m, err := ReadMessage(pkt)
	if err != nil {
		return err
	}
	if p := peerOf(c); p != nil && p.name != "" {
		m.From = p.name
	}

	out, err := srv.writer.Build(IDMessage, m.From, m.Text, m.Urgent)
	if err != nil {
		return err
	}
	n := srv.hub.Broadcast(out)
	util.LogDebug("message from %q delivered to %d streams", m.From, n)
	return nil
}

// handleBlob echoes the blob back to its sender.
func (srv *Server) handleBlob(pkt *protocol.Packet, c dispatch.Conn) error {
	data, err := pkt.ReadByteArray()
	if err != nil {
		return err
	}
	return c.Write(IDBlob, data)
}

func peerOf(c dispatch.Conn) *peer {
	s, ok := c.(*stream.Stream)
	if !ok {
		return nil
	}
	p, ok := s.Attachment().(*peer)
	if !ok {
		p = &peer{}
		s.SetAttachment(p)
	}
	return p
}

// RunServer listens on cfg.Address and serves until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	srv, err := NewServer(cfg, reg)
	if err != nil {
		return err
	}

	l, err := transport.Listen(cfg.Transport, cfg.Address)
	if err != nil {
		return err
	}
	defer l.Close()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	if cfg.MetricsAddress != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddress, reg); err != nil {
				util.LogError("metrics endpoint: %v", err)
			}
		}()
	}
	util.StartStatsReporter(ctx, cfg.StatsInterval)
	util.LogSuccess("listening on %s (%s)", l.Addr(), cfg.Transport)

	return srv.Serve(ctx, l)
}
