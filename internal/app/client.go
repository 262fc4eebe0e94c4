package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/1ureka/framewire/internal/config"
	"github.com/1ureka/framewire/internal/dispatch"
	"github.com/1ureka/framewire/internal/protocol"
	"github.com/1ureka/framewire/internal/stream"
	"github.com/1ureka/framewire/internal/transport"
	"github.com/1ureka/framewire/internal/util"
)

// DefaultPingInterval is how often a client measures the round trip.
const DefaultPingInterval = 5 * time.Second

// Client runs the chat protocol against one server stream. Inbound packets
// are queued by the stream and dispatched from Run's drain ticker.
type Client struct {
	cfg    config.Config
	opts   stream.Options
	reader *dispatch.Reader
	writer *dispatch.Writer

	Out          io.Writer     // one line per chat message
	PingInterval time.Duration // how often RTT is measured

	rtt    atomic.Int64
	server atomic.Value // string
}

// NewClient builds a client from cfg.
func NewClient(cfg config.Config) (*Client, error) {
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

	c := &Client{
		cfg:          cfg,
		opts:         opts,
		reader:       dispatch.NewReader(),
		writer:       writer,
		Out:          os.Stdout,
		PingInterval: DefaultPingInterval,
	}
	if err := c.reader.Handle(c.handleHello, IDHello); err != nil {
		return nil, err
	}
	if err := c.reader.Handle(c.handlePong, IDPong); err != nil {
		return nil, err
	}
	if err := c.reader.Handle(c.handleMessage, IDMessage); err != nil {
		return nil, err
	}
	if err := c.reader.Handle(c.handleBlob, IDBlob); err != nil {
		return nil, err
	}
	return c, nil
}

// RTT returns the last measured round trip, or 0 before the first pong.
func (c *Client) RTT() time.Duration { return time.Duration(c.rtt.Load()) }

// Server returns the name the server greeted with.
func (c *Client) Server() string {
	name, _ := c.server.Load().(string)
	return name
}

// Run greets the server over conn, forwards lines from in as messages and
// blocks until ctx is cancelled, the stream fails or in sends /quit.
func (c *Client) Run(ctx context.Context, conn transport.Conn, in io.Reader) error {
	opts := c.opts
	opts.Name = util.StreamName(string(c.cfg.Transport), conn.LocalAddr(), conn.RemoteAddr())
	opts.Observer = util.Stats

	s := stream.New(ctx, conn, c.reader, c.writer, opts)
	defer s.Close()

	if err := s.Write(IDHello, c.cfg.Name); err != nil {
		return err
	}
	if in != nil {
		go c.forward(s, in)
	}
	go c.pingLoop(s)

	drainLoop(s, c.cfg.Stream.DrainInterval)

	err := s.Wait()
	if errors.Is(err, stream.ErrClosed) {
		return nil
	}
	return err
}

// forward turns input lines into packets. A leading "!" marks the message
// urgent; /ping, /blob <n> and /quit are commands.
func (c *Client) forward(s *stream.Stream, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch {
		case line == "/quit":
			s.Close()
			return
		case line == "/ping":
			err = c.ping(s)
		case strings.HasPrefix(line, "/blob"):
			err = c.blob(s, strings.TrimSpace(strings.TrimPrefix(line, "/blob")))
		case strings.HasPrefix(line, "!"):
			err = s.Write(IDMessage, c.cfg.Name, strings.TrimSpace(line[1:]), true)
		default:
			err = s.Write(IDMessage, c.cfg.Name, line, false)
		}
		if err != nil {
			if errors.Is(err, stream.ErrClosed) {
				return
			}
			util.LogWarning("%v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		util.LogWarning("input: %v", err)
	}
}

func (c *Client) blob(s *stream.Stream, arg string) error {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 || n > MaxBlobSize {
		return fmt.Errorf("usage: /blob <0..%d>", MaxBlobSize)
	}
	return s.Write(IDBlob, make([]byte, n))
}

func (c *Client) ping(s *stream.Stream) error {
	return s.Write(IDPing, uint64(time.Now().UnixNano()))
}

func (c *Client) pingLoop(s *stream.Stream) {
	interval := c.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(s); err != nil {
				return
			}
		case <-s.Done():
			return
		}
	}
}

// drainLoop dispatches queued packets every interval until s stops.
func drainLoop(s *stream.Stream, interval time.Duration) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Drain()
		case <-s.Done():
			return
		}
	}
}

func (c *Client) handleHello(pkt *protocol.Packet, _ dispatch.Conn) error {
	name, err := pkt.ReadString()
	if err != nil {
		return err
	}
	c.server.Store(name)
	util.LogSuccess("greeted by %q", name)
	return nil
}

func (c *Client) handlePong(pkt *protocol.Packet, _ dispatch.Conn) error {
	nonce, err := pkt.ReadLong()
	if err != nil {
		return err
	}
	rtt := time.Since(time.Unix(0, int64(nonce)))
	c.rtt.Store(int64(rtt))
	util.LogDebug("rtt %s", rtt)
	return nil
}

func (c *Client) handleMessage(pkt *protocol.Packet, _ dispatch.Conn) error {
	m, err := ReadMessage(pkt)
	if err != nil {
		return err
	}
	if m.Urgent {
		_, err = fmt.Fprintf(c.Out, "%s (!): %s\n", m.From, m.Text)
	} else {
		_, err = fmt.Fprintf(c.Out, "%s: %s\n", m.From, m.Text)
	}
	return err
}

func (c *Client) handleBlob(pkt *protocol.Packet, _ dispatch.Conn) error {
	data, err := pkt.ReadByteArray()
	if err != nil {
		return err
	}
	util.LogInfo("blob of %d bytes echoed back", len(data))
	return nil
}

// RunClient dials cfg.Address and chats until ctx is cancelled.
func RunClient(ctx context.Context, cfg config.Config, in io.Reader) error {
	c, err := NewClient(cfg)
	if err != nil {
		return err
	}

	conn, err := transport.Dial(ctx, cfg.Transport, cfg.Address)
	if err != nil {
		return err
	}

	util.StartStatsReporter(ctx, cfg.StatsInterval)
	util.LogSuccess("connected to %s (%s) as %q", cfg.Address, cfg.Transport, cfg.Name)

	return c.Run(ctx, conn, in)
}
