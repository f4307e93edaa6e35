package shell

import "fmt"

// Stage is a step of the shell's lifecycle.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageResolve   Stage = "resolve"
	StageProvision Stage = "provision"
	StageSpawn     Stage = "spawn"
	StageRunning   Stage = "running"
	StageExited    Stage = "exited"
	StageStopped   Stage = "stopped"
)

// StartupError is a failure to bring the sidecar up, tagged with the stage that failed.
type StartupError struct {
	Stage Stage
	Err   error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Stage, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
