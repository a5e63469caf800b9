// Package handlers implements the HTTP API: library control (scan, watch,
// clear), catalog queries, artifact generation and the server-sent event
// stream.
package handlers
