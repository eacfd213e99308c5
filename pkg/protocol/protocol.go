// Package protocol defines the JSON wire messages spoken on the three
// WebSocket surfaces of the VJ server: the DJ socket, the browser/admin
// socket, and the downstream renderer socket.
//
// Every message is a JSON object with a "type" field. Inbound frames are
// first probed with [Envelope] and then decoded into the concrete struct
// for that type. Numeric fields arriving from untrusted peers use the
// lenient [Number] and [Flag] types so that a malformed field degrades to
// a default instead of rejecting the whole frame.
package protocol

import "encoding/json"

// Envelope is the minimal probe decode used to dispatch an inbound frame.
type Envelope struct {
	Type string `json:"type"`
}

// MessageType extracts the "type" field from a raw JSON frame. Returns ""
// when the frame is not a JSON object or carries no type.
func MessageType(data []byte) string {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	return env.Type
}

// Marshal encodes v for the wire. It never fails for the message types in
// this package; a marshal error is returned untouched for the caller to
// log.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
