// Package metrics exports stream traffic as Prometheus metrics.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/1ureka/framewire/internal/stream"
)

const namespace = "framewire"

// Collector implements stream.Observer on top of Prometheus collectors.
// One Collector is shared by every stream of a process.
type Collector struct {
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	packetsDropped *prometheus.CounterVec
	streamsActive  prometheus.Gauge
	streamFaults   prometheus.Counter
}

var _ stream.Observer = (*Collector)(nil)

// New registers the framewire collectors with reg. A nil reg means
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames parsed from the receive window, by packet id.",
		}, []string{"id"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames staged into the send window, by packet id.",
		}, []string{"id"}),

		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Bytes read from transports.",
		}),

		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes accepted by transports.",
		}),

		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Packets discarded without being handled or sent.",
		}, []string{"reason"}),

		streamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Streams currently running.",
		}),

		streamFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_faults_total",
			Help:      "Streams that ended with an error other than a normal close.",
		}),
	}
}

func idLabel(id int) string { return strconv.Itoa(id) }

func (c *Collector) StreamOpened() { c.streamsActive.Inc() }

func (c *Collector) StreamClosed(err error) {
	c.streamsActive.Dec()
	if err != nil && !errors.Is(err, stream.ErrClosed) {
		c.streamFaults.Inc()
	}
}

func (c *Collector) FrameReceived(id uint8, _ int) {
	c.framesReceived.WithLabelValues(idLabel(int(id))).Inc()
}

func (c *Collector) FrameSent(id uint8, _ int) {
	c.framesSent.WithLabelValues(idLabel(int(id))).Inc()
}

func (c *Collector) BytesRead(n int) { c.bytesRead.Add(float64(n)) }

func (c *Collector) BytesWritten(n int) { c.bytesWritten.Add(float64(n)) }

func (c *Collector) PacketDropped(_ int, reason string) {
	c.packetsDropped.WithLabelValues(reason).Inc()
}
