package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide traffic counter. It has the method set of a
// stream observer, so it can be passed wherever one is accepted.
var Stats = &stats{}

type stats struct {
	OpenStreams   atomic.Int64 // cumulative count of streams since process start
	ClosedStreams atomic.Int64 // cumulative count of ended streams since process start
	FramesRecv    atomic.Int64 // frames parsed from receive windows
	FramesSent    atomic.Int64 // frames staged into send windows
	Dropped       atomic.Int64 // packets discarded (no handler or queue full)
	BytesSent     atomic.Int64 // cumulative bytes accepted by transports
	BytesRecv     atomic.Int64 // cumulative bytes read from transports
}

func (s *stats) StreamOpened()             { s.OpenStreams.Add(1) }
func (s *stats) StreamClosed(error)        { s.ClosedStreams.Add(1) }
func (s *stats) FrameReceived(uint8, int)  { s.FramesRecv.Add(1) }
func (s *stats) FrameSent(uint8, int)      { s.FramesSent.Add(1) }
func (s *stats) BytesRead(n int)           { s.BytesRecv.Add(int64(n)) }
func (s *stats) BytesWritten(n int)        { s.BytesSent.Add(int64(n)) }
func (s *stats) PacketDropped(int, string) { s.Dropped.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// DefaultStatsInterval is the reporting period when none is configured.
const DefaultStatsInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs traffic statistics
// every interval. Quiet periods are skipped. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		secs := interval.Seconds()
		var prev snapshot
		for {
			select {
			case <-ticker.C:
				cur := Stats.snapshot()
				d := cur.sub(prev)
				if d.opened > 0 || d.closed > 0 || d.framesIn > 0 || d.framesOut > 0 || d.dropped > 0 {
					pterm.DefaultLogger.Info(formatStats(
						float64(d.bytesIn)/secs,
						float64(d.bytesOut)/secs,
						d,
						cur.opened-cur.closed,
					))
				}
				prev = cur
			case <-ctx.Done():
				return
			}
		}
	}()
}

type snapshot struct {
	opened, closed      int64
	framesIn, framesOut int64
	dropped             int64
	bytesIn, bytesOut   int64
}

func (s *stats) snapshot() snapshot {
	return snapshot{
		opened:    s.OpenStreams.Load(),
		closed:    s.ClosedStreams.Load(),
		framesIn:  s.FramesRecv.Load(),
		framesOut: s.FramesSent.Load(),
		dropped:   s.Dropped.Load(),
		bytesIn:   s.BytesRecv.Load(),
		bytesOut:  s.BytesSent.Load(),
	}
}

func (a snapshot) sub(b snapshot) snapshot {
	return snapshot{
		opened:    a.opened - b.opened,
		closed:    a.closed - b.closed,
		framesIn:  a.framesIn - b.framesIn,
		framesOut: a.framesOut - b.framesOut,
		dropped:   a.dropped - b.dropped,
		bytesIn:   a.bytesIn - b.bytesIn,
		bytesOut:  a.bytesOut - b.bytesOut,
	}
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders one reporter line.
func formatStats(inS, outS float64, d snapshot, live int64) string {
	return fmt.Sprintf("In: %s/s %4d fr | Out: %s/s %4d fr | Dropped: %d | Streams: %d live %2d↑ %2d↓",
		formatBytes(inS), d.framesIn,
		formatBytes(outS), d.framesOut,
		d.dropped,
		live, d.opened, d.closed,
	)
}
