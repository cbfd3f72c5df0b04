package sourcekitd

import (
	"encoding/binary"
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
)

// variantType tags the runtime representation of a request or response value.
// The numbering mirrors the backend's variant type enum and must not change.
type variantType uint8

const (
	variantNull       variantType = 0
	variantDictionary variantType = 1
	variantArray      variantType = 2
	variantInt64      variantType = 3
	variantString     variantType = 4
	variantUID        variantType = 5
	variantBool       variantType = 6
	variantDouble     variantType = 7
	variantData       variantType = 8
)

// variant is the untyped value tree exchanged with the backend. Dictionaries
// keep Keys[i] paired with Elems[i] in insertion order; arrays use Elems only.
type variant struct {
	Type  variantType `msgpack:"t"`
	Str   string      `msgpack:"s,omitempty"`
	Int   int64       `msgpack:"i,omitempty"`
	Bool  bool        `msgpack:"b,omitempty"`
	Dbl   float64     `msgpack:"f,omitempty"`
	UID   UID         `msgpack:"u,omitempty"`
	Keys  []UID       `msgpack:"k,omitempty"`
	Elems []*variant  `msgpack:"e,omitempty"`
	Data  []byte      `msgpack:"d,omitempty"`
}

// lookup returns the value stored under key in a dictionary variant.
func (v *variant) lookup(key UID) (*variant, bool) {
	if v == nil || v.Type != variantDictionary {
		return nil, false
	}
	for i, k := range v.Keys {
		if k == key {
			return v.Elems[i], true
		}
	}
	return nil, false
}

// setKey stores a value under key, replacing any previous value.
func (v *variant) setKey(key UID, value *variant) {
	for i, k := range v.Keys {
		if k == key {
			v.Elems[i] = value
			return
		}
	}
	v.Keys = append(v.Keys, key)
	v.Elems = append(v.Elems, value)
}

// Wire error kinds, mirroring the backend's error enum.
const (
	wireErrNone                  uint8 = 0
	wireErrConnectionInterrupted uint8 = 1
	wireErrRequestInvalid        uint8 = 2
	wireErrRequestFailed         uint8 = 3
	wireErrRequestCancelled      uint8 = 4
)

// Frame operations spoken between the binding and an out-of-process backend.
const (
	wireOpHello        = "hello"
	wireOpUID          = "uid"
	wireOpRequest      = "request"
	wireOpCancel       = "cancel"
	wireOpResponse     = "response"
	wireOpNotification = "notification"
	wireOpShutdown     = "shutdown"
)

// wireMessage is one framed message of the backend dictionary protocol.
type wireMessage struct {
	Op      string   `msgpack:"op"`
	Handle  uint64   `msgpack:"h,omitempty"`
	UID     UID      `msgpack:"u,omitempty"`
	Name    string   `msgpack:"n,omitempty"`
	Symbols []string `msgpack:"sym,omitempty"`
	ErrKind uint8    `msgpack:"ek,omitempty"`
	ErrDesc string   `msgpack:"ed,omitempty"`
	Value   *variant `msgpack:"v,omitempty"`
}

// maxFrameSize bounds a single frame. Oversized frames indicate a protocol
// desync and are treated as connection failure.
const maxFrameSize = 256 << 20

// writeFrame writes one length-prefixed msgpack frame.
func writeFrame(w io.Writer, msg *wireMessage) error {
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	size, err := safecast.Conv[uint32](len(body))
	if err != nil {
		return fmt.Errorf("frame too large: %w", err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], size)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed msgpack frame.
func readFrame(r io.Reader) (*wireMessage, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	var msg wireMessage
	if err := msgpack.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return &msg, nil
}
