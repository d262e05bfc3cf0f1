package sessiontransport

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"github.com/dmitrymomot/appkit/core/forwardmsg"
	"github.com/dmitrymomot/appkit/core/logger"
	"github.com/dmitrymomot/appkit/core/runtime"
)

// Frame scheme tags. The first byte of every outbound binary frame names
// how the CBOR message bytes that follow are packed. These values are
// protocol constants.
const (
	schemeRaw  byte = 0x00
	schemeZstd byte = 0x01
)

// eventFrame is the wire form of an incoming client event.
type eventFrame struct {
	Kind string `cbor:"kind"`
	Data []byte `cbor:"data,omitempty"`
}

// WSClient delivers forward messages to one connected browser over a
// websocket. It implements runtime.SessionClient: write failures surface as
// runtime.ErrSessionClientDisconnected, which the dispatch loop treats as a
// session-removal trigger.
//
// Messages are CBOR-encoded and sent as binary frames, optionally
// zstd-compressed when the encoded size reaches the configured threshold.
// WriteMessage is safe for concurrent use, though the dispatch loop is the
// only expected caller.
type WSClient struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	compressMin  int // 0 disables compression
	logger       *slog.Logger

	writeMu sync.Mutex
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

// WSOption configures a WSClient.
type WSOption func(*WSClient)

// WithWriteTimeout bounds each frame write. Default is 30 seconds.
func WithWriteTimeout(timeout time.Duration) WSOption {
	return func(c *WSClient) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}

// WithCompression enables zstd compression for frames whose encoded size is
// at least minSize bytes. Disabled by default: most frames below the message
// cache threshold are too small to benefit.
func WithCompression(minSize int) WSOption {
	return func(c *WSClient) {
		if minSize > 0 {
			c.compressMin = minSize
		}
	}
}

// WithWSLogger configures structured logging for the client.
func WithWSLogger(logger *slog.Logger) WSOption {
	return func(c *WSClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewWSClient wraps an upgraded websocket connection.
func NewWSClient(conn *websocket.Conn, opts ...WSOption) (*WSClient, error) {
	if conn == nil {
		return nil, ErrConnNil
	}

	c := &WSClient{
		conn:         conn,
		writeTimeout: 30 * time.Second,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.compressMin > 0 {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, errors.Join(ErrCompressionInit, err)
		}
		c.enc = enc
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Join(ErrCompressionInit, err)
	}
	c.dec = dec

	return c, nil
}

// WriteMessage implements runtime.SessionClient. Any write failure means the
// connection is unusable, so every error is reported as a disconnect.
func (c *WSClient) WriteMessage(msg *forwardmsg.Message) error {
	data, err := forwardmsg.Marshal(msg)
	if err != nil {
		return err
	}

	frame := make([]byte, 1, 1+len(data))
	frame[0] = schemeRaw
	if c.enc != nil && len(data) >= c.compressMin {
		frame[0] = schemeZstd
		frame = c.enc.EncodeAll(data, frame)
	} else {
		frame = append(frame, data...)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return errors.Join(runtime.ErrSessionClientDisconnected, err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.logger.Debug("websocket write failed", logger.Error(err))
		return errors.Join(runtime.ErrSessionClientDisconnected, err)
	}

	return nil
}

// ReadEvent blocks until the client sends an event frame and decodes it.
// It returns runtime.ErrSessionClientDisconnected once the connection is
// closed. Intended to be called in a per-connection read loop that forwards
// events into runtime.HandleEvent.
func (c *WSClient) ReadEvent() (runtime.Event, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return runtime.Event{}, errors.Join(runtime.ErrSessionClientDisconnected, err)
	}

	var frame eventFrame
	if err := cbor.Unmarshal(data, &frame); err != nil {
		return runtime.Event{}, errors.Join(ErrMalformedEvent, err)
	}

	return runtime.Event{Kind: frame.Kind, Data: frame.Data}, nil
}

// DecodeFrame unpacks one binary frame produced by WriteMessage back into a
// message. Exported for client implementations and tests.
func (c *WSClient) DecodeFrame(frame []byte) (*forwardmsg.Message, error) {
	if len(frame) < 1 {
		return nil, ErrMalformedFrame
	}

	data := frame[1:]
	switch frame[0] {
	case schemeRaw:
	case schemeZstd:
		decoded, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, errors.Join(ErrMalformedFrame, err)
		}
		data = decoded
	default:
		return nil, ErrMalformedFrame
	}

	return forwardmsg.Unmarshal(data)
}

// Close closes the underlying connection. Safe to call more than once.
func (c *WSClient) Close() error {
	return c.conn.Close()
}
