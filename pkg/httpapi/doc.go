// Package httpapi serves the read-mostly HTTP mirror of the session:
// a point-in-time status poll, a server-sent-events status stream, and
// the two admin actions external tooling needs (start a round, reveal
// it). Vote values never appear in status responses; only the reveal
// endpoint exposes them, together with round statistics.
package httpapi
