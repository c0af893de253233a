// Package protocol defines the wire protocol between poker clients and
// the session server.
//
// The protocol is newline-delimited JSON: one record per line, each
// record a tagged object. Client records carry a "kind" tag (login,
// move, vote, vote_confirm, admin); admin records carry an additional
// "action" tag (start_vote, reveal, reset, kick, update_config).
// Server records are welcome, state, and error.
//
// The same records travel over both transports: raw TCP (one line per
// record) and WebSocket (one text message per record).
//
//	Client                          Server
//	  │                                │
//	  │──── {"kind":"login",...} ────>│
//	  │                                │
//	  │<─── {"kind":"welcome",...} ───│
//	  │<─── {"kind":"state",...} ─────│  (on every session change)
//	  │                                │
//	  │──── {"kind":"vote",...} ─────>│
//	  │<─── {"kind":"state",...} ─────│
//
// Snapshots inside welcome/state records are per-viewer: during a
// voting round, other participants' vote values are redacted.
package protocol
