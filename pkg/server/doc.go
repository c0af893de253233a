// Package server runs the shared poker session: the serialized command
// engine, the connection registry, per-connection sessions, and the
// TCP and WebSocket listeners.
//
// All session state lives behind one mutex inside Engine. Commands
// enter through Engine methods, mutate the aggregate, and fan out
// per-viewer snapshots to every registered session's bounded outbound
// queue. No network I/O happens under the lock; each session's writer
// goroutine drains its own queue. A session that cannot keep up has
// its queue overflow and is closed instead of stalling the broadcast.
package server
