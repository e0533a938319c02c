package model

// Identity is the anonymous player record carried across reconnects
type Identity struct {
	SessionID string `json:"sessionId"`
	Nickname  string `json:"nickname"`
	Chips     int64  `json:"chips"`
}

// HasSession reports whether the identity has been assigned a session id
func (i Identity) HasSession() bool {
	return i.SessionID != ""
}

// MaxNicknameLength is the longest nickname the client will store or send
const MaxNicknameLength = 20
