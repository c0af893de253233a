// Package poker holds the planning-poker session domain: the shared
// session aggregate, the round phase machine, per-viewer snapshot
// filtering, and vote statistics.
//
// The aggregate is a plain value with no locking of its own. Callers
// (pkg/server.Engine) are responsible for serializing access; every
// mutator returns whether it changed anything so callers can decide
// whether a broadcast is due.
package poker
