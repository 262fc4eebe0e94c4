package dispatch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/1ureka/framewire/internal/protocol"
)

const tracerName = "github.com/1ureka/framewire/dispatch"

// Reader routes inbound packets to handlers by id.
type Reader struct {
	handlers registry[Handler]
	tracer   trace.Tracer
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTracerProvider starts dispatch spans from tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) ReaderOption {
	return func(r *Reader) { r.tracer = tp.Tracer(tracerName) }
}

// NewReader creates an empty reader using the global tracer provider.
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{tracer: otel.Tracer(tracerName)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds h to every id it declares. A duplicate id anywhere in the
// list rejects the whole handler.
func (r *Reader) Register(h Handler) error {
	return r.handlers.add(h, h.Binds())
}

// Handle is shorthand for Register(NewHandler(fn, ids...)).
func (r *Reader) Handle(fn HandlerFunc, ids ...uint8) error {
	return r.Register(NewHandler(fn, ids...))
}

// Seal freezes the table. Streams seal their reader on creation.
func (r *Reader) Seal() { r.handlers.seal() }

// Sealed reports whether Seal has been called.
func (r *Reader) Sealed() bool { return r.handlers.isSealed() }

// IDs returns the bound ids in ascending order.
func (r *Reader) IDs() []uint8 { return r.handlers.ids() }

// Dispatch hands pkt to the handler bound to its id. A handler panic is
// recovered and reported as ErrHandlerPanic.
func (r *Reader) Dispatch(ctx context.Context, pkt *protocol.Packet, c Conn) (err error) {
	id := pkt.ID()
	if id < 0 || id > 0xFF {
		return fmt.Errorf("%w: id %d", protocol.ErrUnhandledPacketID, id)
	}
	h, ok := r.handlers.lookup(uint8(id))
	if !ok {
		return fmt.Errorf("%w: id %d", protocol.ErrUnhandledPacketID, id)
	}

	_, span := r.tracer.Start(ctx, "packet.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int("packet.id", id),
			attribute.Int("packet.size", pkt.Cap()),
		),
	)
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: id %d: %v", ErrHandlerPanic, id, rec)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	pkt.Rewind()
	return h.HandlePacket(pkt, c)
}
