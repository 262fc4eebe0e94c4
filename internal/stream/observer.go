package stream

// Observer receives traffic events from a stream. Calls come from the
// stream's goroutines and from Enqueue callers, so implementations must be
// safe for concurrent use.
type Observer interface {
	StreamOpened()
	StreamClosed(err error)
	FrameReceived(id uint8, size int)
	FrameSent(id uint8, size int)
	BytesRead(n int)
	BytesWritten(n int)
	PacketDropped(id int, reason string)
}

// Drop reasons passed to Observer.PacketDropped.
const (
	DropUnhandled = "unhandled"
	DropQueueFull = "queue_full"
)

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StreamOpened()             {}
func (NopObserver) StreamClosed(error)        {}
func (NopObserver) FrameReceived(uint8, int)  {}
func (NopObserver) FrameSent(uint8, int)      {}
func (NopObserver) BytesRead(int)             {}
func (NopObserver) BytesWritten(int)          {}
func (NopObserver) PacketDropped(int, string) {}

type multiObserver []Observer

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return NopObserver{}
	case 1:
		return m[0]
	}
	return m
}

func (m multiObserver) StreamOpened() {
	for _, o := range m {
		o.StreamOpened()
	}
}

func (m multiObserver) StreamClosed(err error) {
	for _, o := range m {
		o.StreamClosed(err)
	}
}

func (m multiObserver) FrameReceived(id uint8, size int) {
	for _, o := range m {
		o.FrameReceived(id, size)
	}
}

func (m multiObserver) FrameSent(id uint8, size int) {
	for _, o := range m {
		o.FrameSent(id, size)
	}
}

func (m multiObserver) BytesRead(n int) {
	for _, o := range m {
		o.BytesRead(n)
	}
}

func (m multiObserver) BytesWritten(n int) {
	for _, o := range m {
		o.BytesWritten(n)
	}
}

func (m multiObserver) PacketDropped(id int, reason string) {
	for _, o := range m {
		o.PacketDropped(id, reason)
	}
}
