package sidecar

import "fmt"

// Kind tags an Event.
type Kind int

const (
	Stdout Kind = iota + 1
	Stderr
	Exited
)

func (k Kind) String() string {
	switch k {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is one item of process output.
// Line is set for Stdout and Stderr and holds the raw bytes without the line terminator.
// Code is set for Exited, and is -1 if the process was killed by a signal or its status is unknown.
type Event struct {
	Kind Kind
	Line []byte
	Code int
}
