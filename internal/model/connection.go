package model

// ConnectionState describes the lifecycle of the link to the authority.
// Ready means the handshake completed on the current connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReady        ConnectionState = "ready"
)

// Online reports whether a transport connection is currently open
func (s ConnectionState) Online() bool {
	return s == StateConnected || s == StateReady
}
