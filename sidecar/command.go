package sidecar

import (
	"net"
	"strconv"
	"strings"
)

const (
	// Host is the loopback address the backend binds.
	Host = "127.0.0.1"
	// Port is the fixed backend port the front end connects to.
	Port = 60316
	// RuntimeName is the name of the bundled runtime binary.
	RuntimeName = "uv"
)

// Addr is the backend's host:port.
func Addr() string {
	return net.JoinHostPort(Host, strconv.Itoa(Port))
}

// URL is the backend's base HTTP URL.
func URL() string {
	return "http://" + Addr() + "/"
}

// Command describes a process to spawn.
type Command struct {
	Path string
	Args []string
	// Env entries are appended to the current environment.
	Env []string
	Dir string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// SyncCommand syncs the dependencies of the project at dir.
func SyncCommand(runtime, dir string) Command {
	return Command{
		Path: runtime,
		Args: []string{"sync", "--directory", dir},
	}
}

// RunCommand serves entry from the project at dir on Host:Port.
func RunCommand(runtime, dir, entry string) Command {
	return Command{
		Path: runtime,
		Args: []string{
			"run",
			"--directory", dir,
			entry,
			"--host", Host,
			"--port", strconv.Itoa(Port),
		},
	}
}
