// Package sessiontransport bridges the transport-agnostic runtime broker
// and a concrete client connection.
//
// WSClient implements runtime.SessionClient over a gorilla/websocket
// connection: forward messages are CBOR-encoded, optionally zstd-compressed
// above a size threshold, and written as binary frames. A closed or failing
// connection surfaces as runtime.ErrSessionClientDisconnected, which the
// dispatch loop converts into session removal rather than an error.
//
// Typical wiring inside a websocket handler:
//
//	client, _ := sessiontransport.NewWSClient(conn)
//	id, err := rt.CreateSession(client, runner)
//	if err != nil {
//		return err
//	}
//	defer rt.CloseSession(id)
//
//	for {
//		event, err := client.ReadEvent()
//		if err != nil {
//			return nil // client gone; dispatch loop cleans up on next write
//		}
//		_ = rt.HandleEvent(id, event)
//	}
package sessiontransport
