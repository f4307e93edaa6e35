package env

import "fmt"

// Mode selects how the backend environment is located.
type Mode int

const (
	// Development resolves the backend from a source checkout next to the working directory.
	Development Mode = iota
	// Production resolves the backend from the installed app's data and resource directories.
	Production
)

func (m Mode) String() string {
	switch m {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}
