package sessiontransport_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/appkit/core/forwardmsg"
	"github.com/dmitrymomot/appkit/core/runtime"
	"github.com/dmitrymomot/appkit/core/sessiontransport"
)

// newWSPair returns a server-side WSClient and the browser-side raw
// connection talking to it.
func newWSPair(t *testing.T, opts ...sessiontransport.WSOption) (*sessiontransport.WSClient, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	browser, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = browser.Close() })

	client, err := sessiontransport.NewWSClient(<-serverConns, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, browser
}

func TestNewWSClient(t *testing.T) {
	t.Parallel()

	_, err := sessiontransport.NewWSClient(nil)
	assert.ErrorIs(t, err, sessiontransport.ErrConnNil)
}

func TestWriteMessage(t *testing.T) {
	t.Parallel()

	t.Run("delivers a raw frame", func(t *testing.T) {
		t.Parallel()

		client, browser := newWSPair(t)

		msg := &forwardmsg.Message{Kind: forwardmsg.KindDelta, Name: "table", Payload: []byte("cells")}
		require.NoError(t, client.WriteMessage(msg))

		frameType, frame, err := browser.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.BinaryMessage, frameType)
		require.Equal(t, byte(0x00), frame[0])

		got, err := client.DecodeFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	})

	t.Run("compresses large frames", func(t *testing.T) {
		t.Parallel()

		client, browser := newWSPair(t, sessiontransport.WithCompression(64))

		payload := make([]byte, 32*1024) // zero bytes compress well
		msg := &forwardmsg.Message{Kind: forwardmsg.KindDelta, Payload: payload}
		require.NoError(t, client.WriteMessage(msg))

		_, frame, err := browser.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, byte(0x01), frame[0])
		assert.Less(t, len(frame), len(payload))

		got, err := client.DecodeFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	})

	t.Run("small frames stay raw under compression", func(t *testing.T) {
		t.Parallel()

		client, browser := newWSPair(t, sessiontransport.WithCompression(64*1024))

		require.NoError(t, client.WriteMessage(&forwardmsg.Message{Kind: forwardmsg.KindControl}))

		_, frame, err := browser.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, byte(0x00), frame[0])
	})

	t.Run("reports disconnect on closed connection", func(t *testing.T) {
		t.Parallel()

		client, _ := newWSPair(t)
		require.NoError(t, client.Close())

		err := client.WriteMessage(&forwardmsg.Message{Kind: forwardmsg.KindControl})
		assert.ErrorIs(t, err, runtime.ErrSessionClientDisconnected)
	})
}

func TestReadEvent(t *testing.T) {
	t.Parallel()

	t.Run("decodes an incoming event frame", func(t *testing.T) {
		t.Parallel()

		client, browser := newWSPair(t)

		frame, err := cbor.Marshal(struct {
			Kind string `cbor:"kind"`
			Data []byte `cbor:"data,omitempty"`
		}{Kind: "widget", Data: []byte(`{"value":42}`)})
		require.NoError(t, err)
		require.NoError(t, browser.WriteMessage(websocket.BinaryMessage, frame))

		event, err := client.ReadEvent()
		require.NoError(t, err)
		assert.Equal(t, "widget", event.Kind)
		assert.Equal(t, []byte(`{"value":42}`), event.Data)
	})

	t.Run("reports disconnect when the client goes away", func(t *testing.T) {
		t.Parallel()

		client, browser := newWSPair(t)
		require.NoError(t, browser.Close())

		_, err := client.ReadEvent()
		assert.ErrorIs(t, err, runtime.ErrSessionClientDisconnected)
	})

	t.Run("rejects malformed frames", func(t *testing.T) {
		t.Parallel()

		client, browser := newWSPair(t)
		require.NoError(t, browser.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xff, 0xff}))

		_, err := client.ReadEvent()
		assert.ErrorIs(t, err, sessiontransport.ErrMalformedEvent)
	})
}
