package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/1ureka/framewire/internal/stream"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCollectorCounts(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.StreamOpened()
	c.StreamOpened()
	c.FrameReceived(1, 4)
	c.FrameReceived(1, 4)
	c.FrameReceived(2, 0)
	c.FrameSent(3, 8)
	c.BytesRead(100)
	c.BytesWritten(42)
	c.PacketDropped(9, stream.DropUnhandled)
	c.StreamClosed(stream.ErrClosed)
	c.StreamClosed(errors.New("reset by peer"))

	testCases := []struct {
		name string
		got  float64
		want float64
	}{
		{"frames received id 1", counterValue(t, c.framesReceived.WithLabelValues("1")), 2},
		{"frames received id 2", counterValue(t, c.framesReceived.WithLabelValues("2")), 1},
		{"frames sent id 3", counterValue(t, c.framesSent.WithLabelValues("3")), 1},
		{"bytes read", counterValue(t, c.bytesRead), 100},
		{"bytes written", counterValue(t, c.bytesWritten), 42},
		{"dropped unhandled", counterValue(t, c.packetsDropped.WithLabelValues(stream.DropUnhandled)), 1},
		{"faults", counterValue(t, c.streamFaults), 1},
		{"active", gaugeValue(t, c.streamsActive), 0},
	}
	for _, tc := range testCases {
		if tc.got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Fatal("second New on the same registry should panic on duplicate registration")
		}
	}()
	New(reg)
}

func TestRouterServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.BytesRead(7)

	srv := httptest.NewServer(NewRouter(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "framewire_bytes_read_total 7") {
		t.Fatalf("metrics body missing bytes_read_total:\n%s", body)
	}

	health, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: got %d", health.StatusCode)
	}
}
