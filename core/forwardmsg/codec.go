package forwardmsg

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder configured with Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Content hashing requires that the same logical
// message always produces identical bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields for forward
// compatibility.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("forwardmsg: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("forwardmsg: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes a message to its canonical CBOR wire form.
func Marshal(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	return encMode.Marshal(msg)
}

// Unmarshal decodes CBOR data into a message.
func Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := decMode.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
