// Package logx is crmbot's structured logger: a value-type Logger with typed
// fields on top of zerolog.
//
// Loggers handed out by Service follow Service.Apply, so level and sinks can
// change on config reload without rebuilding components. Bot tokens are
// scrubbed from error and secret fields before they reach any sink.
package logx
