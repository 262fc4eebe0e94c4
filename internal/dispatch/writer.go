package dispatch

import (
	"fmt"

	"github.com/1ureka/framewire/internal/protocol"
)

// Writer builds outbound packets through creators bound by id.
type Writer struct {
	creators registry[Creator]
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Register binds c to every id it declares, all or nothing.
func (w *Writer) Register(c Creator) error {
	return w.creators.add(c, c.Binds())
}

// Create is shorthand for Register(NewCreator(fn, ids...)).
func (w *Writer) Create(fn CreatorFunc, ids ...uint8) error {
	return w.Register(NewCreator(fn, ids...))
}

// Seal freezes the table. Streams seal their writer on creation.
func (w *Writer) Seal() { w.creators.seal() }

// Sealed reports whether Seal has been called.
func (w *Writer) Sealed() bool { return w.creators.isSealed() }

// IDs returns the bound ids in ascending order.
func (w *Writer) IDs() []uint8 { return w.creators.ids() }

// Build runs the creator for id and returns the finalized packet.
func (w *Writer) Build(id uint8, params ...any) (*protocol.Packet, error) {
	c, ok := w.creators.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", protocol.ErrUnknownPacketID, id)
	}
	pkt := protocol.NewPacket(int(id))
	if err := c.CreatePacket(pkt, params); err != nil {
		return nil, fmt.Errorf("dispatch: create packet %d: %w", id, err)
	}
	pkt.Finalize()
	return pkt, nil
}

// Write builds a packet for id and enqueues it on e.
func (w *Writer) Write(e Enqueuer, id uint8, params ...any) error {
	pkt, err := w.Build(id, params...)
	if err != nil {
		return err
	}
	return e.Enqueue(pkt)
}
