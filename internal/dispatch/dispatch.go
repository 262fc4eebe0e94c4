// Package dispatch holds the id→handler and id→creator registries that sit
// between a stream and the application protocol.
package dispatch

import (
	"errors"

	"github.com/1ureka/framewire/internal/protocol"
)

var (
	ErrDuplicateID  = errors.New("dispatch: packet id already registered")
	ErrSealed       = errors.New("dispatch: registry is sealed")
	ErrHandlerPanic = errors.New("dispatch: handler panicked")
)

// Enqueuer accepts finalized outbound packets.
type Enqueuer interface {
	Enqueue(pkt *protocol.Packet) error
}

// Conn is the view of a stream that a handler gets: it can queue raw
// packets or build new ones through the stream's creators.
type Conn interface {
	Enqueuer
	Write(id uint8, params ...any) error
}

// Handler consumes inbound packets for the ids it binds.
type Handler interface {
	Binds() []uint8
	HandlePacket(pkt *protocol.Packet, c Conn) error
}

// Creator fills outbound packets for the ids it binds. params are passed
// through from Write untouched.
type Creator interface {
	Binds() []uint8
	CreatePacket(pkt *protocol.Packet, params []any) error
}

// HandlerFunc adapts a function to the handler callback.
type HandlerFunc func(pkt *protocol.Packet, c Conn) error

// CreatorFunc adapts a function to the creator callback.
type CreatorFunc func(pkt *protocol.Packet, params []any) error

type funcHandler struct {
	ids []uint8
	fn  HandlerFunc
}

func (h *funcHandler) Binds() []uint8 { return h.ids }

func (h *funcHandler) HandlePacket(pkt *protocol.Packet, c Conn) error { return h.fn(pkt, c) }

type funcCreator struct {
	ids []uint8
	fn  CreatorFunc
}

func (c *funcCreator) Binds() []uint8 { return c.ids }

func (c *funcCreator) CreatePacket(pkt *protocol.Packet, params []any) error {
	return c.fn(pkt, params)
}

// NewHandler binds fn to the given ids.
func NewHandler(fn HandlerFunc, ids ...uint8) Handler {
	return &funcHandler{ids: ids, fn: fn}
}

// NewCreator binds fn to the given ids.
func NewCreator(fn CreatorFunc, ids ...uint8) Creator {
	return &funcCreator{ids: ids, fn: fn}
}
