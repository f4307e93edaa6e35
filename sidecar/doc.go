/*
Package sidecar spawns and owns the backend process.

A Process is started from a Command and streams its output as Events on a single channel, in the order the lines
were read: Stdout and Stderr lines as they arrive, then exactly one Exited event, after which the channel is closed.
Stdin stays open for the life of the process. Write is safe to call from multiple goroutines and never blocks: input
is queued for a single writer, and is refused with ErrStdinFull when the process stops reading.

The backend always binds Host:Port. That address is a fixed contract with the front end; there is no discovery.

Processes are not restarted. The owner must call Shutdown, which closes stdin, sends SIGTERM to the process group, and
kills the group if the context expires first.
*/
package sidecar
