package hub

// Message is an event sent to subscribers.
type Message struct {
	Event   string
	Payload string
}

// InputMessage is sent by subscribers to write a line to the sidecar's stdin.
type InputMessage struct {
	Input string
}

// Status is the state reported on /status.
type Status struct {
	Stage       string
	ProcessID   string `json:",omitempty"`
	PID         int    `json:",omitempty"`
	ExitCode    *int   `json:",omitempty"`
	Ready       bool
	Relayed     uint64
	Subscribers int
	Error       string `json:",omitempty"`
}
