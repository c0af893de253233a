// Package config persists the session's voting configuration (the
// card deck and default round timeout) across restarts. The engine
// only sees the Store interface; the medium is a deployment choice
// between a local JSON file and an S3 object.
package config
