// Package logging provides the structured logging used throughout the host, the
// endpoint registry, the mock plane, and the queue streams.
//
// Every call site tags its message with a subsystem name ("Registry", "Host",
// "Queue", "Mock", ...) so that log output can be filtered and correlated across
// the cooperative-suspension worker pool without needing per-package loggers.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Info("Registry", "registered endpoint %s with score %d", name, score)
//	logging.Error("Queue", err, "failed to recover record at offset %d", offset)
package logging
