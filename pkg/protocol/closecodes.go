package protocol

import "github.com/coder/websocket"

// Server-initiated WebSocket close codes. The 400x range covers admission
// failures on the DJ socket; 4010 and 4100 are post-admission policy
// closes.
const (
	// CloseAuthTimeout — no authentication frame within the deadline.
	CloseAuthTimeout websocket.StatusCode = 4001

	// CloseInvalidJSON — the peer sent a frame that is not a JSON object.
	CloseInvalidJSON websocket.StatusCode = 4002

	// CloseExpectedAuth — the first frame was not an authentication message.
	CloseExpectedAuth websocket.StatusCode = 4003

	// CloseAuthFailed — bad credentials, or an invalid/expired connect code.
	CloseAuthFailed websocket.StatusCode = 4004

	// CloseDuplicate — a session for this DJ id already exists.
	CloseDuplicate websocket.StatusCode = 4005

	// CloseDenied — an operator denied the pending connection.
	CloseDenied websocket.StatusCode = 4006

	// CloseKicked — an operator removed the DJ from the roster.
	CloseKicked websocket.StatusCode = 4010

	// CloseHeartbeatTimeout — two consecutive missed heartbeat pongs.
	CloseHeartbeatTimeout websocket.StatusCode = 4100
)
