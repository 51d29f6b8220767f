// Package logging provides file-based logging with rotation for clawmongo.
// Logs are written to ~/.clawmongo/logs/server.log. The --debug flag turns
// this on for any command; the MCP server (serve) always logs there at debug
// level and never writes log output to stdout or stderr.
//
// Without --debug, other commands keep the default slog logger on stderr.
package logging
