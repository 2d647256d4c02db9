// Package logging configures the process-wide slog logger.
//
// Logs are JSON lines. With --debug they go to a size-rotated file under
// ~/.amanidx/logs/ as well as stderr; without it only warnings reach stderr.
// The MCP stdio server must never write to stdout or stderr, so it logs to
// the file alone.
package logging
