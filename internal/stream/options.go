package stream

import (
	"fmt"
	"strings"

	"github.com/1ureka/framewire/internal/protocol"
)

// DefaultWindowSize is the receive and send window size when none is set.
// It matches the window existing peers allocate, so a peer may not send a
// frame larger than this without both sides raising it.
const DefaultWindowSize = 1024

const (
	DefaultOutboundQueue = 256
	DefaultInboundQueue  = 256
)

// Overflow selects what Enqueue does when the outbound queue is full.
type Overflow int

const (
	// OverflowBlock waits for room or for the stream to close.
	OverflowBlock Overflow = iota
	// OverflowDrop discards the packet and reports it to the observer.
	OverflowDrop
	// OverflowReject returns ErrQueueFull to the caller.
	OverflowReject
)

func (o Overflow) String() string {
	switch o {
	case OverflowBlock:
		return "block"
	case OverflowDrop:
		return "drop"
	case OverflowReject:
		return "reject"
	default:
		return fmt.Sprintf("overflow(%d)", int(o))
	}
}

// ParseOverflow maps a config value to an Overflow policy.
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return OverflowBlock, nil
	case "drop":
		return OverflowDrop, nil
	case "reject":
		return OverflowReject, nil
	}
	return 0, fmt.Errorf("stream: unknown overflow policy %q", s)
}

// DispatchMode selects where inbound packets are handled.
type DispatchMode int

const (
	// DispatchImmediate runs handlers on the receive goroutine.
	DispatchImmediate DispatchMode = iota
	// DispatchQueued parks packets in the inbound queue until Drain.
	DispatchQueued
)

func (m DispatchMode) String() string {
	switch m {
	case DispatchImmediate:
		return "immediate"
	case DispatchQueued:
		return "queued"
	default:
		return fmt.Sprintf("dispatch(%d)", int(m))
	}
}

// ParseDispatchMode maps a config value to a DispatchMode.
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "immediate":
		return DispatchImmediate, nil
	case "queued", "deferred":
		return DispatchQueued, nil
	}
	return 0, fmt.Errorf("stream: unknown dispatch mode %q", s)
}

// Options tunes a Stream. Zero fields take their defaults.
type Options struct {
	Name          string // shown in log lines
	ReceiveWindow int
	SendWindow    int
	OutboundQueue int
	InboundQueue  int
	Overflow      Overflow
	Dispatch      DispatchMode
	Observer      Observer
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Name:          "stream",
		ReceiveWindow: DefaultWindowSize,
		SendWindow:    DefaultWindowSize,
		OutboundQueue: DefaultOutboundQueue,
		InboundQueue:  DefaultInboundQueue,
		Overflow:      OverflowBlock,
		Dispatch:      DispatchImmediate,
		Observer:      NopObserver{},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Name == "" {
		o.Name = def.Name
	}
	if o.ReceiveWindow <= 0 {
		o.ReceiveWindow = def.ReceiveWindow
	}
	if o.SendWindow <= 0 {
		o.SendWindow = def.SendWindow
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = def.OutboundQueue
	}
	if o.InboundQueue <= 0 {
		o.InboundQueue = def.InboundQueue
	}
	if o.Observer == nil {
		o.Observer = def.Observer
	}
	return o
}

// Validate checks the options after defaults are applied.
func (o Options) Validate() error {
	o = o.withDefaults()
	if o.ReceiveWindow < protocol.HeaderSize {
		return fmt.Errorf("stream: receive window %d is smaller than a frame header", o.ReceiveWindow)
	}
	if o.SendWindow < protocol.HeaderSize {
		return fmt.Errorf("stream: send window %d is smaller than a frame header", o.SendWindow)
	}
	if o.ReceiveWindow > protocol.MaxFrameSize || o.SendWindow > protocol.MaxFrameSize {
		return fmt.Errorf("stream: windows larger than %d bytes can never be filled by one frame", protocol.MaxFrameSize)
	}
	if o.Overflow < OverflowBlock || o.Overflow > OverflowReject {
		return fmt.Errorf("stream: invalid overflow policy %d", int(o.Overflow))
	}
	if o.Dispatch < DispatchImmediate || o.Dispatch > DispatchQueued {
		return fmt.Errorf("stream: invalid dispatch mode %d", int(o.Dispatch))
	}
	return nil
}
