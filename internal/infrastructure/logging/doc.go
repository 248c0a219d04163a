// Package logging provides the structured logger shared by every component.
//
// It wraps log/slog with JSON (default) or text output, level filtering and
// the default attributes service=classroom and version. Components derive
// child loggers with With("component", name) and accept them through small
// Logger interfaces of their own.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log operator passwords, JWT secrets or issued tokens.
package logging
