/*
Package hub is the shell's event bus for front-end subscribers.

Subscribers connect a WebSocket to GET /events and receive every emitted event as a JSON Message, in emit order.
A new subscriber first receives the most recent events, so output produced before the front end connected is not
lost. Subscribers that fall too far behind are disconnected rather than slowing down the relay.

Host-originated input flows the other way: a subscriber may send InputMessage frames on the same WebSocket, or
POST a body to /input. Either is written to the attached input (the sidecar's stdin) as a single line.
Both are subject to the same origin policy; requests without an Origin header (non-browser clients) are accepted.

GET /status reports the shell's state as JSON.
*/
package hub
