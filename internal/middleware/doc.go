// Package middleware provides HTTP middleware: access logging and
// Prometheus request metrics.
package middleware
