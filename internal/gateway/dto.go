package gateway

// Client → server message types.
const (
	MsgSubscribe   = "SUBSCRIBE"
	MsgUnsubscribe = "UNSUBSCRIBE"
	MsgActivate    = "ACTIVATE"
	MsgDeactivate  = "DEACTIVATE"
)

// InboundMsg is any message a client sends. Ping-only messages carry no
// type.
type InboundMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	ID     string `json:"id,omitempty"`
	Ping   int64  `json:"ping,omitempty"`
}

// ErrorMsg reports a rejected client message.
type ErrorMsg struct {
	Type   string `json:"type"` // always "error"
	Symbol string `json:"symbol,omitempty"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error"`
}

// PongMsg answers a client ping.
type PongMsg struct {
	Type     string `json:"type"` // always "pong"
	Ping     int64  `json:"ping"`
	ServerTS int64  `json:"server_ts"`
}

// AckMsg confirms a subscription or selection change.
type AckMsg struct {
	Type   string `json:"type"` // always "ack"
	Action string `json:"action"`
	Symbol string `json:"symbol"`
	ID     string `json:"id,omitempty"`
}
