// Package app contains the demo chat protocol and the server and client
// runners built on top of a framewire stream.
package app

import (
	"fmt"
	"unicode/utf8"

	"github.com/1ureka/framewire/internal/dispatch"
	"github.com/1ureka/framewire/internal/protocol"
	"github.com/1ureka/framewire/internal/stream"
)

// Packet ids of the chat protocol.
const (
	IDHello   uint8 = 0x01 // name string
	IDPing    uint8 = 0x02 // nonce u64
	IDPong    uint8 = 0x03 // nonce u64, echoed from the ping
	IDMessage uint8 = 0x04 // from string, text string, urgent bool
	IDBlob    uint8 = 0x05 // data byte array
)

// Limits that keep every chat packet inside the default 1024-byte window.
const (
	MaxNameRunes = 32
	MaxTextRunes = 200
	MaxBlobSize  = 512
)

// MaxFrameSize is the largest frame the chat protocol builds, a message with
// a full name and text. Every stream window must hold it.
const MaxFrameSize = protocol.HeaderSize + max(
	4+4*MaxNameRunes+4+4*MaxTextRunes+1,
	4+MaxBlobSize,
)

// CheckWindows rejects stream windows that cannot hold MaxFrameSize. Zero
// windows take the stream default.
func CheckWindows(opts stream.Options) error {
	if opts.SendWindow > 0 && opts.SendWindow < MaxFrameSize {
		return fmt.Errorf("app: send window %d cannot hold a %d-byte chat frame", opts.SendWindow, MaxFrameSize)
	}
	if opts.ReceiveWindow > 0 && opts.ReceiveWindow < MaxFrameSize {
		return fmt.Errorf("app: receive window %d cannot hold a %d-byte chat frame", opts.ReceiveWindow, MaxFrameSize)
	}
	return nil
}

// NewWriter returns a writer with a creator for every chat packet.
func NewWriter() (*dispatch.Writer, error) {
	w := dispatch.NewWriter()
	if err := w.Create(createString, IDHello); err != nil {
		return nil, err
	}
	if err := w.Create(createNonce, IDPing, IDPong); err != nil {
		return nil, err
	}
	if err := w.Create(createMessage, IDMessage); err != nil {
		return nil, err
	}
	if err := w.Create(createBlob, IDBlob); err != nil {
		return nil, err
	}
	return w, nil
}

func createString(pkt *protocol.Packet, params []any) error {
	s, err := param[string](params, 0)
	if err != nil {
		return err
	}
	return pkt.WriteString(truncate(s, MaxNameRunes))
}

func createNonce(pkt *protocol.Packet, params []any) error {
	n, err := param[uint64](params, 0)
	if err != nil {
		return err
	}
	return pkt.WriteLong(n)
}

func createMessage(pkt *protocol.Packet, params []any) error {
	from, err := param[string](params, 0)
	if err != nil {
		return err
	}
	text, err := param[string](params, 1)
	if err != nil {
		return err
	}
	urgent, err := param[bool](params, 2)
	if err != nil {
		return err
	}
	if err := pkt.WriteString(truncate(from, MaxNameRunes)); err != nil {
		return err
	}
	if err := pkt.WriteString(truncate(text, MaxTextRunes)); err != nil {
		return err
	}
	return pkt.WriteBoolean(urgent)
}

func createBlob(pkt *protocol.Packet, params []any) error {
	data, err := param[[]byte](params, 0)
	if err != nil {
		return err
	}
	if len(data) > MaxBlobSize {
		return fmt.Errorf("blob of %d bytes exceeds %d", len(data), MaxBlobSize)
	}
	return pkt.WriteByteArray(data)
}

// Message is a decoded IDMessage payload.
type Message struct {
	From   string
	Text   string
	Urgent bool
}

// ReadMessage decodes an IDMessage payload.
func ReadMessage(pkt *protocol.Packet) (Message, error) {
	var m Message
	var err error
	if m.From, err = pkt.ReadString(); err != nil {
		return m, err
	}
	if m.Text, err = pkt.ReadString(); err != nil {
		return m, err
	}
	if m.Urgent, err = pkt.ReadBoolean(); err != nil {
		return m, err
	}
	return m, nil
}

func param[T any](params []any, i int) (T, error) {
	var zero T
	if i >= len(params) {
		return zero, fmt.Errorf("missing parameter %d", i)
	}
	v, ok := params[i].(T)
	if !ok {
		return zero, fmt.Errorf("parameter %d: want %T, got %T", i, zero, params[i])
	}
	return v, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
